package types

// Request is the closed set of operations the data-access worker executes.
// Only the variants in this file implement it.
type Request interface {
	Method() ProtocolMethod
	sealed()
}

// GetRequest fetches one record (ID or Name set) or the whole table.
type GetRequest struct {
	Table Table
	ID    *int64
	Name  *string
}

// SetLookupRequest inserts a room, type or color.
type SetLookupRequest struct {
	Table Table
	Name  string
}

// SetItemRequest inserts an item after resolving its lookup names.
type SetItemRequest struct {
	Item NewItem
}

// SetUserRequest creates an account.
type SetUserRequest struct {
	Username string
	Password string
	IsAdmin  bool
}

// DeleteRequest removes a row. Items are keyed by ID, lookups by Name, users by
// Name (the username).
type DeleteRequest struct {
	Table Table
	ID    *int64
	Name  string
}

type AuthenticateRequest struct {
	Username string
	Password string
}

type IsAdminRequest struct {
	Username string
}

type SearchRequest struct {
	Filter SearchFilter
}

// AttachImageRequest points an existing item at an image path.
type AttachImageRequest struct {
	ItemID    int64
	ImagePath string
}

// SnapshotRequest writes a compressed copy of the database under the snapshot dir.
type SnapshotRequest struct {
	Name string
}

func (GetRequest) Method() ProtocolMethod          { return OpGet }
func (SetLookupRequest) Method() ProtocolMethod    { return OpSet }
func (SetItemRequest) Method() ProtocolMethod      { return OpSet }
func (SetUserRequest) Method() ProtocolMethod      { return OpSet }
func (DeleteRequest) Method() ProtocolMethod       { return OpDelete }
func (AuthenticateRequest) Method() ProtocolMethod { return OpAuthenticate }
func (IsAdminRequest) Method() ProtocolMethod      { return OpIsAdmin }
func (SearchRequest) Method() ProtocolMethod       { return OpSearch }
func (AttachImageRequest) Method() ProtocolMethod  { return OpAttachImage }
func (SnapshotRequest) Method() ProtocolMethod     { return OpSnapshot }

func (GetRequest) sealed()          {}
func (SetLookupRequest) sealed()    {}
func (SetItemRequest) sealed()      {}
func (SetUserRequest) sealed()      {}
func (DeleteRequest) sealed()       {}
func (AuthenticateRequest) sealed() {}
func (IsAdminRequest) sealed()      {}
func (SearchRequest) sealed()       {}
func (AttachImageRequest) sealed()  {}
func (SnapshotRequest) sealed()     {}
