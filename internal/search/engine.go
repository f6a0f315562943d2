// Package search turns a sparse client query into a worker search filter.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"catalogd/internal/session"
	"catalogd/internal/types"
)

// Engine holds the filter state of one connection. Every Search starts from a
// reset filter, so nothing carries over between calls.
type Engine struct {
	worker session.Submitter
	filter types.SearchFilter
}

func NewEngine(worker session.Submitter) *Engine {
	return &Engine{worker: worker, filter: types.NewSearchFilter()}
}

// Filter returns a copy of the filter used by the most recent search.
func (e *Engine) Filter() types.SearchFilter {
	out := types.NewSearchFilter()
	for k, v := range e.filter.Values {
		if v != nil {
			s := *v
			out.Values[k] = &s
		}
	}
	for k, v := range e.filter.Active {
		out.Active[k] = v
	}
	return out
}

func (e *Engine) reset() {
	for _, a := range types.SearchAttributes {
		e.filter.Values[a] = nil
		e.filter.Active[a] = false
	}
}

// Search activates each known attribute present in query, ignores unknown
// keys and null values, and returns the matching items.
func (e *Engine) Search(ctx context.Context, query map[string]interface{}) ([]types.Item, error) {
	e.reset()
	for key, raw := range query {
		if _, known := e.filter.Active[key]; !known || raw == nil {
			continue
		}
		v := stringify(raw)
		e.filter.Values[key] = &v
		e.filter.Active[key] = true
	}

	data, err := e.worker.Submit(ctx, types.SearchRequest{Filter: e.Filter()})
	if err != nil {
		return nil, err
	}
	items, ok := data.([]types.Item)
	if !ok {
		return nil, fmt.Errorf("unexpected search result %T", data)
	}
	return items, nil
}

func stringify(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
