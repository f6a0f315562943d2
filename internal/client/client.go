// Package client is a small Go client for the catalog wire protocol.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/zeebo/blake3"

	"catalogd/internal/types"
	"catalogd/internal/wire"
)

var ErrDigestMismatch = errors.New("client: image digest mismatch")

// StatusError is a MESSAGE response received where data was expected.
type StatusError struct {
	Message string
}

func (e *StatusError) Error() string { return "server: " + e.Message }

// Client holds one connection. It is not safe for concurrent use; the
// protocol has no request ids and answers arrive in order.
type Client struct {
	conn     net.Conn
	r        *bufio.Reader
	maxFrame uint32
}

// Dial connects to a catalog server. maxFrame bounds incoming frames, 0 means
// unlimited.
func Dial(ctx context.Context, addr string, maxFrame uint32) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, r: bufio.NewReader(conn), maxFrame: maxFrame}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

// Do sends one command object and returns the raw JSON answer.
func (c *Client) Do(req interface{}) (json.RawMessage, error) {
	if err := wire.WriteJSON(c.conn, req); err != nil {
		return nil, err
	}
	return c.readJSON()
}

// Message sends a command whose answer is a status message.
func (c *Client) Message(req interface{}) (wire.Message, error) {
	var msg wire.Message
	raw, err := c.Do(req)
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("decode status: %w", err)
	}
	return msg, nil
}

func (c *Client) Authenticate(username, password string) (string, error) {
	msg, err := c.Message(map[string]interface{}{
		"command":  wire.CmdAuthenticate,
		"username": username,
		"password": password,
	})
	return msg.Message, err
}

func (c *Client) Disconnect() (string, error) {
	msg, err := c.Message(map[string]interface{}{"command": wire.CmdDisconnect})
	return msg.Message, err
}

// Get fetches from table. key may hold "id", "name" or "username"; an empty
// key lists the table.
func (c *Client) Get(table string, key map[string]interface{}) (json.RawMessage, error) {
	return c.Do(command(wire.CmdGet, table, key))
}

func (c *Client) Set(table string, fields map[string]interface{}) (wire.Message, error) {
	return c.Message(command(wire.CmdSet, table, fields))
}

func (c *Client) Delete(table string, key map[string]interface{}) (wire.Message, error) {
	return c.Message(command(wire.CmdDelete, table, key))
}

// Search runs a filtered item search.
func (c *Client) Search(query map[string]interface{}) ([]types.Item, error) {
	raw, err := c.Do(map[string]interface{}{"command": wire.CmdSearch, "query": query})
	if err != nil {
		return nil, err
	}
	var items []types.Item
	if err := decodeData(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SendImage uploads data to path under the server's image root.
func (c *Client) SendImage(path string, data []byte) (wire.ImageReceived, error) {
	var resp wire.ImageReceived
	header, err := json.Marshal(map[string]interface{}{
		"command":      wire.CmdReceiveImage,
		"image_path":   path,
		"image_weight": len(data),
	})
	if err != nil {
		return resp, err
	}
	var buf bytes.Buffer
	if err := wire.WriteFrame(&buf, header); err != nil {
		return resp, err
	}
	if err := wire.WriteFrame(&buf, data); err != nil {
		return resp, err
	}
	if _, err := c.conn.Write(buf.Bytes()); err != nil {
		return resp, err
	}
	raw, err := c.readJSON()
	if err != nil {
		return resp, err
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, err
	}
	if resp.Message != wire.MsgImageReceived {
		return resp, &StatusError{Message: resp.Message}
	}
	return resp, nil
}

// ItemImage is an item together with its image bytes, when it has one.
type ItemImage struct {
	Item types.Item
	// Image is nil when the item has no image or the file is missing.
	Image   []byte
	Hash    string
	Message string
}

// GetItemWithImage fetches item id and reads the trailing image frame when
// the server announces one. The payload is checked against the announced
// blake3 digest.
func (c *Client) GetItemWithImage(id int64) (*ItemImage, error) {
	raw, err := c.Get(string(types.TableItems), map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	var resp struct {
		types.Item
		ImageWeight *int64 `json:"image_weight"`
		ImageHash   string `json:"image_hash"`
		Message     string `json:"MESSAGE"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	if resp.ID == 0 && resp.Message != "" {
		return nil, &StatusError{Message: resp.Message}
	}
	out := &ItemImage{Item: resp.Item, Hash: resp.ImageHash, Message: resp.Message}
	if resp.ImageWeight == nil {
		return out, nil
	}

	payload, err := wire.ReadFrame(c.r, 0)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(payload)) != *resp.ImageWeight {
		return nil, fmt.Errorf("read image: got %d bytes, announced %d", len(payload), *resp.ImageWeight)
	}
	sum := blake3.Sum256(payload)
	if resp.ImageHash != "" && hex.EncodeToString(sum[:]) != resp.ImageHash {
		return nil, ErrDigestMismatch
	}
	out.Image = payload
	return out, nil
}

func (c *Client) readJSON() (json.RawMessage, error) {
	b, err := wire.ReadFrame(c.r, c.maxFrame)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func command(name, table string, fields map[string]interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		m[k] = v
	}
	m["command"] = name
	m["table"] = table
	return m
}

// decodeData unmarshals raw into v, reporting a status object as StatusError.
func decodeData(raw json.RawMessage, v interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var msg wire.Message
		if err := json.Unmarshal(trimmed, &msg); err == nil && msg.Message != "" {
			return &StatusError{Message: msg.Message}
		}
	}
	return json.Unmarshal(raw, v)
}
