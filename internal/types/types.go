package types

import "strings"

// ProtocolMethod defines the operation type executed by the data-access worker.
type ProtocolMethod int

const (
	OpGet ProtocolMethod = iota
	OpSet
	OpDelete
	OpAuthenticate
	OpIsAdmin
	OpSearch
	OpAttachImage
	OpSnapshot
)

func (p ProtocolMethod) String() string {
	switch p {
	case OpGet:
		return "GET"
	case OpSet:
		return "SET"
	case OpDelete:
		return "DELETE"
	case OpAuthenticate:
		return "AUTHENTICATE"
	case OpIsAdmin:
		return "IS_ADMIN"
	case OpSearch:
		return "SEARCH"
	case OpAttachImage:
		return "ATTACH_IMAGE"
	case OpSnapshot:
		return "SNAPSHOT"
	default:
		return "UNKNOWN"
	}
}

// Table names a catalog table as it appears on the wire and in the schema.
type Table string

const (
	TableItems  Table = "fournitures"
	TableRooms  Table = "rooms"
	TableTypes  Table = "types"
	TableColors Table = "colors"
	TableUsers  Table = "users"
)

// ParseTable accepts the canonical plural names and their singular forms.
func ParseTable(s string) (Table, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fournitures", "fourniture":
		return TableItems, true
	case "rooms", "room":
		return TableRooms, true
	case "types", "type":
		return TableTypes, true
	case "colors", "color":
		return TableColors, true
	case "users", "user":
		return TableUsers, true
	}
	return "", false
}

// IsLookup reports whether t is one of the small name-keyed reference tables.
func (t Table) IsLookup() bool {
	return t == TableRooms || t == TableTypes || t == TableColors
}

// Thing is the human label used in status messages ("Room not found").
func (t Table) Thing() string {
	switch t {
	case TableItems:
		return "Fourniture"
	case TableRooms:
		return "Room"
	case TableTypes:
		return "Type"
	case TableColors:
		return "Color"
	case TableUsers:
		return "User"
	}
	return "Record"
}

// ServerConfig holds the runtime settings shared by the network and worker layers.
type ServerConfig struct {
	MaxFrameBytes uint32
	MaxImageBytes uint32
	QueueDepth    int
	SnapshotDir   string
}

// RequestContext carries request data through the pipeline.
type RequestContext struct {
	ReqID     string
	Operation ProtocolMethod
	Params    Request              // One of the closed set of request variants
	RespChan  chan ResponseContext // Owned by the submitting caller, capacity 1
}

// ResponseContext carries the result.
type ResponseContext struct {
	ReqID string
	Data  interface{} // Record, list, created id, flag or snapshot info
	Error error
}
