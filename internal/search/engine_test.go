package search

import (
	"context"
	"testing"

	"catalogd/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWorker struct {
	last types.SearchFilter
}

func (w *recordingWorker) Submit(ctx context.Context, req types.Request) (interface{}, error) {
	w.last = req.(types.SearchRequest).Filter
	return []types.Item{}, nil
}

func activeKeys(f types.SearchFilter) []string {
	var out []string
	for _, a := range types.SearchAttributes {
		if f.Active[a] {
			out = append(out, a)
		}
	}
	return out
}

func TestSearchActivatesOnlyKnownKeys(t *testing.T) {
	w := &recordingWorker{}
	e := NewEngine(w)

	items, err := e.Search(context.Background(), map[string]interface{}{
		"room":  "Kitchen",
		"name":  "chair",
		"owner": "ignored",
	})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, []string{"room", "name"}, activeKeys(w.last))
	v, ok := w.last.Value("room")
	assert.True(t, ok)
	assert.Equal(t, "Kitchen", v)
	_, hasOwner := w.last.Active["owner"]
	assert.False(t, hasOwner)
}

func TestSearchResetsBetweenCalls(t *testing.T) {
	w := &recordingWorker{}
	e := NewEngine(w)

	_, err := e.Search(context.Background(), map[string]interface{}{"room": "Kitchen", "color": "Red"})
	require.NoError(t, err)
	_, err = e.Search(context.Background(), map[string]interface{}{"type": "Chair"})
	require.NoError(t, err)

	assert.Equal(t, []string{"type"}, activeKeys(w.last))
	assert.Nil(t, w.last.Values["room"])
	assert.Nil(t, w.last.Values["color"])

	_, err = e.Search(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, activeKeys(w.last))
	assert.Empty(t, activeKeys(e.Filter()))
}

func TestSearchStringifiesValuesAndSkipsNull(t *testing.T) {
	w := &recordingWorker{}
	e := NewEngine(w)

	_, err := e.Search(context.Background(), map[string]interface{}{"name": float64(42), "room": nil})
	require.NoError(t, err)
	v, ok := w.last.Value("name")
	assert.True(t, ok)
	assert.Equal(t, "42", v)
	assert.False(t, w.last.Active["room"])
}
