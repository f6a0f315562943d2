package wire

import "catalogd/internal/types"

// Status strings sent in the MESSAGE field. Clients match on them verbatim.
const (
	MsgAuthOK          = "Authentication successful"
	MsgAuthFailed      = "Authentication failed"
	MsgDisconnected    = "Disconnected"
	MsgUnauthorized    = "Authentication required or admin rights required or wrong command"
	MsgInvalidCommand  = "Invalid command"
	MsgInvalidRequest  = "Invalid request"
	MsgInvalidTable    = "Invalid table"
	MsgImageReceived   = "Image received"
	MsgImageNotFound   = "Image not found"
	MsgImageAttached   = "Image attached successfully"
	MsgImageSize       = "Image size mismatch"
	MsgSnapshotCreated = "Snapshot created"
	MsgInternal        = "Internal error"
	MsgUnavailable     = "Server shutting down"
)

// Message is the generic status response.
type Message struct {
	Message string `json:"MESSAGE"`
	ID      *int64 `json:"id,omitempty"`
}

func NewMessage(msg string) Message { return Message{Message: msg} }

// Created is the response to a successful SET.
func Created(t types.Table, id int64) Message {
	if t == types.TableItems {
		return Message{Message: "Fourniture set successfully", ID: &id}
	}
	return Message{Message: t.Thing() + " added successfully", ID: &id}
}

func Deleted(t types.Table) Message {
	return Message{Message: t.Thing() + " deleted successfully"}
}

// ItemWithImage is a GET response for an item whose image follows as the
// next frame.
type ItemWithImage struct {
	types.Item
	ImageWeight int64  `json:"image_weight"`
	ImageHash   string `json:"image_hash"`
}

// ItemMissingImage replaces an unresolvable image reference.
type ItemMissingImage struct {
	types.Item
	ImageWeight *int64 `json:"image_weight"`
	Message     string `json:"MESSAGE"`
}

// LookupName is the by-name lookup response.
type LookupName struct {
	Name string `json:"name"`
}

// ImageReceived acknowledges an upload.
type ImageReceived struct {
	Message   string `json:"MESSAGE"`
	ImagePath string `json:"image_path"`
	ImageHash string `json:"image_hash"`
}

type SnapshotCreated struct {
	Message string `json:"MESSAGE"`
	Path    string `json:"path"`
	Size    int64  `json:"size"`
}
