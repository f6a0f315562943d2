package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"catalogd/internal/types"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidTable   = errors.New("invalid table")
	ErrUnknownCommand = errors.New("unknown command")
)

// Command names as sent by clients.
const (
	CmdAuthenticate = "AUTHENTICATE"
	CmdDisconnect   = "DISCONNECT"
	CmdGet          = "GET"
	CmdSet          = "SET"
	CmdDelete       = "DELETE"
	CmdSearch       = "SEARCH"
	CmdReceiveImage = "RECIEVE_IMAGE"
	CmdAttachImage  = "ATTACH_IMAGE"
	CmdSnapshot     = "SNAPSHOT"
)

// Command is one decoded control frame.
type Command interface {
	Name() string
	// AdminOnly reports whether the command needs an admin session.
	AdminOnly() bool
}

type Authenticate struct {
	Username string
	Password string
}

type Disconnect struct{}

type Get struct {
	Req types.GetRequest
}

// Set carries a SetLookupRequest, SetItemRequest or SetUserRequest.
type Set struct {
	Table types.Table
	Req   types.Request
}

type Delete struct {
	Req types.DeleteRequest
}

type Search struct {
	Query map[string]interface{}
}

// ReceiveImage announces an upload; the payload is the next frame.
type ReceiveImage struct {
	Path   string
	Weight int64
}

type AttachImage struct {
	Req types.AttachImageRequest
}

type Snapshot struct {
	Req types.SnapshotRequest
}

// Unknown is any command name the server does not implement.
type Unknown struct {
	Command string
}

func (Authenticate) Name() string { return CmdAuthenticate }
func (Disconnect) Name() string   { return CmdDisconnect }
func (Get) Name() string          { return CmdGet }
func (Set) Name() string          { return CmdSet }
func (Delete) Name() string       { return CmdDelete }
func (Search) Name() string       { return CmdSearch }
func (ReceiveImage) Name() string { return CmdReceiveImage }
func (AttachImage) Name() string  { return CmdAttachImage }
func (Snapshot) Name() string     { return CmdSnapshot }
func (u Unknown) Name() string    { return u.Command }

func (Authenticate) AdminOnly() bool { return false }
func (Disconnect) AdminOnly() bool   { return false }
func (Get) AdminOnly() bool          { return false }
func (Set) AdminOnly() bool          { return true }
func (Delete) AdminOnly() bool       { return true }
func (Search) AdminOnly() bool       { return false }
func (ReceiveImage) AdminOnly() bool { return true }
func (AttachImage) AdminOnly() bool  { return true }
func (Snapshot) AdminOnly() bool     { return true }
func (Unknown) AdminOnly() bool      { return true }

// fields is the union of every key any command uses.
type fields struct {
	Table       *string                `json:"table"`
	ID          *int64                 `json:"id"`
	Name        *string                `json:"name"`
	Username    *string                `json:"username"`
	Password    *string                `json:"password"`
	IsAdmin     *bool                  `json:"is_admin"`
	Room        *string                `json:"room"`
	Type        *string                `json:"type"`
	Color       *string                `json:"color"`
	XDimension  *int64                 `json:"x_dimension"`
	YDimension  *int64                 `json:"y_dimension"`
	Width       *int64                 `json:"width"`
	Height      *int64                 `json:"height"`
	ImagePath   *string                `json:"image_path"`
	ImageWeight *int64                 `json:"image_weight"`
	Price       *int64                 `json:"price"`
	Query       map[string]interface{} `json:"query"`
}

// Decode parses a control frame. When the command name itself could be read
// the returned Command is non-nil even if err is set, so callers can still
// tell a malformed RECIEVE_IMAGE apart and consume its payload.
func Decode(frame []byte) (Command, error) {
	var head struct {
		Command *string `json:"command"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if head.Command == nil {
		return nil, fmt.Errorf("%w: missing command", ErrInvalidRequest)
	}
	name := strings.ToUpper(strings.TrimSpace(*head.Command))

	var f fields
	dec := json.NewDecoder(bytes.NewReader(frame))
	dec.UseNumber()
	fieldErr := dec.Decode(&f)

	switch name {
	case CmdAuthenticate:
		if fieldErr != nil {
			return Authenticate{}, invalid(fieldErr)
		}
		if f.Username == nil || f.Password == nil {
			return Authenticate{}, missing("username", "password")
		}
		return Authenticate{Username: *f.Username, Password: *f.Password}, nil

	case CmdDisconnect:
		return Disconnect{}, nil

	case CmdGet:
		if fieldErr != nil {
			return Get{}, invalid(fieldErr)
		}
		return decodeGet(&f)

	case CmdSet:
		if fieldErr != nil {
			return Set{}, invalid(fieldErr)
		}
		return decodeSet(&f)

	case CmdDelete:
		if fieldErr != nil {
			return Delete{}, invalid(fieldErr)
		}
		return decodeDelete(&f)

	case CmdSearch:
		if fieldErr != nil {
			return Search{}, invalid(fieldErr)
		}
		if f.Query == nil {
			f.Query = map[string]interface{}{}
		}
		return Search{Query: f.Query}, nil

	case CmdReceiveImage, "RECEIVE_IMAGE":
		if fieldErr != nil {
			return ReceiveImage{}, invalid(fieldErr)
		}
		if f.ImagePath == nil || f.ImageWeight == nil {
			return ReceiveImage{}, missing("image_path", "image_weight")
		}
		if *f.ImageWeight < 0 {
			return ReceiveImage{}, fmt.Errorf("%w: negative image_weight", ErrInvalidRequest)
		}
		return ReceiveImage{Path: *f.ImagePath, Weight: *f.ImageWeight}, nil

	case CmdAttachImage:
		if fieldErr != nil {
			return AttachImage{}, invalid(fieldErr)
		}
		if f.ID == nil || f.ImagePath == nil {
			return AttachImage{}, missing("id", "image_path")
		}
		return AttachImage{Req: types.AttachImageRequest{ItemID: *f.ID, ImagePath: *f.ImagePath}}, nil

	case CmdSnapshot:
		if fieldErr != nil {
			return Snapshot{}, invalid(fieldErr)
		}
		if f.Name == nil {
			return Snapshot{}, missing("name")
		}
		return Snapshot{Req: types.SnapshotRequest{Name: *f.Name}}, nil
	}
	return Unknown{Command: name}, ErrUnknownCommand
}

func decodeTable(f *fields) (types.Table, error) {
	if f.Table == nil {
		return "", missing("table")
	}
	t, ok := types.ParseTable(*f.Table)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTable, *f.Table)
	}
	return t, nil
}

func decodeGet(f *fields) (Command, error) {
	t, err := decodeTable(f)
	if err != nil {
		return Get{}, err
	}
	req := types.GetRequest{Table: t, ID: f.ID, Name: f.Name}
	if t == types.TableUsers && f.Username != nil {
		req.Name = f.Username
	}
	return Get{Req: req}, nil
}

func decodeSet(f *fields) (Command, error) {
	t, err := decodeTable(f)
	if err != nil {
		return Set{}, err
	}
	switch {
	case t.IsLookup():
		if f.Name == nil {
			return Set{Table: t}, missing("name")
		}
		return Set{Table: t, Req: types.SetLookupRequest{Table: t, Name: *f.Name}}, nil

	case t == types.TableUsers:
		if f.Username == nil || f.Password == nil {
			return Set{Table: t}, missing("username", "password")
		}
		req := types.SetUserRequest{Username: *f.Username, Password: *f.Password}
		if f.IsAdmin != nil {
			req.IsAdmin = *f.IsAdmin
		}
		return Set{Table: t, Req: req}, nil
	}

	x, y := f.XDimension, f.YDimension
	if x == nil {
		x = f.Width
	}
	if y == nil {
		y = f.Height
	}
	if f.Name == nil || f.Room == nil || f.Type == nil || f.Color == nil || x == nil || y == nil {
		return Set{Table: t}, missing("name", "room", "type", "color", "x_dimension", "y_dimension")
	}
	item := types.NewItem{
		Name:       *f.Name,
		Room:       *f.Room,
		Type:       *f.Type,
		Color:      *f.Color,
		XDimension: *x,
		YDimension: *y,
		Price:      f.Price,
	}
	if f.ImagePath != nil && *f.ImagePath != "" {
		item.ImagePath = f.ImagePath
	}
	return Set{Table: t, Req: types.SetItemRequest{Item: item}}, nil
}

func decodeDelete(f *fields) (Command, error) {
	t, err := decodeTable(f)
	if err != nil {
		return Delete{}, err
	}
	req := types.DeleteRequest{Table: t}
	switch {
	case t == types.TableItems:
		if f.ID == nil {
			return Delete{}, missing("id")
		}
		req.ID = f.ID
	case t == types.TableUsers:
		switch {
		case f.Username != nil:
			req.Name = *f.Username
		case f.Name != nil:
			req.Name = *f.Name
		default:
			return Delete{}, missing("username")
		}
	default:
		if f.Name == nil {
			return Delete{}, missing("name")
		}
		req.Name = *f.Name
	}
	return Delete{Req: req}, nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
}

func missing(names ...string) error {
	return fmt.Errorf("%w: requires %s", ErrInvalidRequest, strings.Join(names, ", "))
}
