package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogd/internal/types"
)

func TestDecodeScenarioSets(t *testing.T) {
	cmd, err := Decode([]byte(`{"command":"SET","table":"rooms","name":"kitchen"}`))
	require.NoError(t, err)
	assert.Equal(t, Set{Table: types.TableRooms, Req: types.SetLookupRequest{Table: types.TableRooms, Name: "kitchen"}}, cmd)
	assert.True(t, cmd.AdminOnly())

	cmd, err = Decode([]byte(`{"command":"SET","table":"fournitures","name":"chair","room":"kitchen","type":"seat","color":"red","x_dimension":1,"y_dimension":2,"image_path":null}`))
	require.NoError(t, err)
	set := cmd.(Set)
	item := set.Req.(types.SetItemRequest).Item
	assert.Equal(t, "chair", item.Name)
	assert.Equal(t, "kitchen", item.Room)
	assert.Equal(t, int64(1), item.XDimension)
	assert.Equal(t, int64(2), item.YDimension)
	assert.Nil(t, item.ImagePath)
	assert.Nil(t, item.Price)
}

func TestDecodeItemAliasesAndOptionals(t *testing.T) {
	cmd, err := Decode([]byte(`{"command":"SET","table":"fourniture","name":"desk","room":"office","type":"table","color":"oak","width":120,"height":80,"image_path":"desk.png","price":15000}`))
	require.NoError(t, err)
	item := cmd.(Set).Req.(types.SetItemRequest).Item
	assert.Equal(t, int64(120), item.XDimension)
	assert.Equal(t, int64(80), item.YDimension)
	require.NotNil(t, item.ImagePath)
	assert.Equal(t, "desk.png", *item.ImagePath)
	require.NotNil(t, item.Price)
	assert.Equal(t, int64(15000), *item.Price)
}

func TestDecodeUsers(t *testing.T) {
	cmd, err := Decode([]byte(`{"command":"SET","table":"users","username":"bob","password":"pw","is_admin":true}`))
	require.NoError(t, err)
	assert.Equal(t, types.SetUserRequest{Username: "bob", Password: "pw", IsAdmin: true}, cmd.(Set).Req)

	cmd, err = Decode([]byte(`{"command":"DELETE","table":"users","username":"bob"}`))
	require.NoError(t, err)
	assert.Equal(t, "bob", cmd.(Delete).Req.Name)

	cmd, err = Decode([]byte(`{"command":"GET","table":"users","username":"bob"}`))
	require.NoError(t, err)
	require.NotNil(t, cmd.(Get).Req.Name)
	assert.Equal(t, "bob", *cmd.(Get).Req.Name)
}

func TestDecodeGetAndDelete(t *testing.T) {
	cmd, err := Decode([]byte(`{"command":"GET","table":"fournitures","id":1}`))
	require.NoError(t, err)
	get := cmd.(Get)
	require.NotNil(t, get.Req.ID)
	assert.Equal(t, int64(1), *get.Req.ID)
	assert.False(t, get.AdminOnly())

	cmd, err = Decode([]byte(`{"command":"GET","table":"colors"}`))
	require.NoError(t, err)
	assert.Nil(t, cmd.(Get).Req.ID)
	assert.Nil(t, cmd.(Get).Req.Name)

	cmd, err = Decode([]byte(`{"command":"DELETE","table":"fournitures","id":3}`))
	require.NoError(t, err)
	assert.Equal(t, int64(3), *cmd.(Delete).Req.ID)

	cmd, err = Decode([]byte(`{"command":"DELETE","table":"types","name":"seat"}`))
	require.NoError(t, err)
	assert.Equal(t, "seat", cmd.(Delete).Req.Name)
}

func TestDecodeSearch(t *testing.T) {
	cmd, err := Decode([]byte(`{"command":"SEARCH","query":{"room":"kitchen","x":1,"color":null}}`))
	require.NoError(t, err)
	q := cmd.(Search).Query
	assert.Equal(t, "kitchen", q["room"])
	assert.Equal(t, json.Number("1"), q["x"])
	v, ok := q["color"]
	assert.True(t, ok)
	assert.Nil(t, v)

	cmd, err = Decode([]byte(`{"command":"SEARCH"}`))
	require.NoError(t, err)
	assert.Empty(t, cmd.(Search).Query)
}

func TestDecodeReceiveImage(t *testing.T) {
	cmd, err := Decode([]byte(`{"command":"RECIEVE_IMAGE","image_path":"a.png","image_weight":42}`))
	require.NoError(t, err)
	assert.Equal(t, ReceiveImage{Path: "a.png", Weight: 42}, cmd)

	cmd, err = Decode([]byte(`{"command":"RECEIVE_IMAGE","image_path":"a.png","image_weight":1}`))
	require.NoError(t, err)
	assert.IsType(t, ReceiveImage{}, cmd)

	// A malformed announcement still identifies itself.
	cmd, err = Decode([]byte(`{"command":"RECIEVE_IMAGE","image_path":"a.png"}`))
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.IsType(t, ReceiveImage{}, cmd)

	cmd, err = Decode([]byte(`{"command":"RECIEVE_IMAGE","image_path":"a.png","image_weight":"big"}`))
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.IsType(t, ReceiveImage{}, cmd)
}

func TestDecodeSupplements(t *testing.T) {
	cmd, err := Decode([]byte(`{"command":"ATTACH_IMAGE","id":7,"image_path":"x/y.png"}`))
	require.NoError(t, err)
	assert.Equal(t, types.AttachImageRequest{ItemID: 7, ImagePath: "x/y.png"}, cmd.(AttachImage).Req)

	cmd, err = Decode([]byte(`{"command":"SNAPSHOT","name":"nightly"}`))
	require.NoError(t, err)
	assert.Equal(t, "nightly", cmd.(Snapshot).Req.Name)
	assert.True(t, cmd.AdminOnly())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"not json", `{"command":`, ErrInvalidRequest},
		{"not an object", `[1,2]`, ErrInvalidRequest},
		{"no command", `{"table":"rooms"}`, ErrInvalidRequest},
		{"bad table", `{"command":"GET","table":"chairs"}`, ErrInvalidTable},
		{"no table", `{"command":"GET"}`, ErrInvalidRequest},
		{"set lookup without name", `{"command":"SET","table":"rooms"}`, ErrInvalidRequest},
		{"set item missing color", `{"command":"SET","table":"fournitures","name":"a","room":"r","type":"t","x_dimension":1,"y_dimension":1}`, ErrInvalidRequest},
		{"delete item without id", `{"command":"DELETE","table":"fournitures","name":"chair"}`, ErrInvalidRequest},
		{"auth without password", `{"command":"AUTHENTICATE","username":"admin"}`, ErrInvalidRequest},
		{"wrong field type", `{"command":"GET","table":"fournitures","id":"one"}`, ErrInvalidRequest},
		{"unknown", `{"command":"DROP"}`, ErrUnknownCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeUnknownCarriesName(t *testing.T) {
	cmd, err := Decode([]byte(`{"command":"drop"}`))
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Equal(t, "DROP", cmd.Name())
	assert.True(t, cmd.AdminOnly())
}
