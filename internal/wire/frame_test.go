package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogd/internal/types"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"command":"GET"}`)))
	require.NoError(t, WriteFrame(&buf, []byte{}))
	require.NoError(t, WriteFrame(&buf, []byte{0, 1, 2}))

	assert.Equal(t, uint32(17), binary.BigEndian.Uint32(buf.Bytes()[:4]))

	got, err := ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, `{"command":"GET"}`, string(got))

	got, err = ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ReadFrame(&buf, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, got)

	_, err = ReadFrame(&buf, 0)
	assert.Equal(t, io.EOF, err)
}

func TestReadFrameLimits(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, make([]byte, 10)))
	_, err := ReadFrame(&buf, 9)
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	// The body is still on the stream and can be skipped.
	require.NoError(t, Discard(&buf, 10))
	assert.Zero(t, buf.Len())
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, 8))
	buf.Write([]byte("abc"))
	_, err := ReadFrame(&buf, 0)
	assert.Equal(t, io.ErrUnexpectedEOF, err)

	_, err = ReadHeader(bytes.NewReader([]byte{0, 1}))
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestWriteJSONScenarioShape(t *testing.T) {
	var buf bytes.Buffer
	item := types.Item{ID: 1, Name: "chair", Room: 1, Type: 1, Color: 1, XDimension: 1, YDimension: 1}
	require.NoError(t, WriteJSON(&buf, item))
	got, err := ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"id":1,"name":"chair","room":1,"type":1,"color":1,"x_dimension":1,"y_dimension":1,"image_path":null}`,
		string(got))
}

func TestMessages(t *testing.T) {
	b, err := jsonOf(Created(types.TableItems, 1))
	require.NoError(t, err)
	assert.JSONEq(t, `{"MESSAGE":"Fourniture set successfully","id":1}`, b)

	b, err = jsonOf(Created(types.TableRooms, 4))
	require.NoError(t, err)
	assert.JSONEq(t, `{"MESSAGE":"Room added successfully","id":4}`, b)

	b, err = jsonOf(Deleted(types.TableColors))
	require.NoError(t, err)
	assert.JSONEq(t, `{"MESSAGE":"Color deleted successfully"}`, b)

	b, err = jsonOf(NewMessage(MsgAuthOK))
	require.NoError(t, err)
	assert.JSONEq(t, `{"MESSAGE":"Authentication successful"}`, b)

	path := "a.png"
	b, err = jsonOf(ItemMissingImage{
		Item:    types.Item{ID: 2, Name: "lamp", ImagePath: &path},
		Message: MsgImageNotFound,
	})
	require.NoError(t, err)
	assert.Contains(t, b, `"image_weight":null`)
	assert.Contains(t, b, `"MESSAGE":"Image not found"`)
}

func jsonOf(v interface{}) (string, error) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, v); err != nil {
		return "", err
	}
	return string(buf.Bytes()[HeaderSize:]), nil
}
