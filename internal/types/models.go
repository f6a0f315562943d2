package types

// Item is a catalog entry (a "fourniture"). Room, Type and Color hold lookup ids.
type Item struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Room       int64   `json:"room"`
	Type       int64   `json:"type"`
	Color      int64   `json:"color"`
	XDimension int64   `json:"x_dimension"`
	YDimension int64   `json:"y_dimension"`
	ImagePath  *string `json:"image_path"`
	Price      *int64  `json:"price,omitempty"`
}

// NewItem is an item as submitted by a client: lookups are referenced by name.
type NewItem struct {
	Name       string
	Room       string
	Type       string
	Color      string
	XDimension int64
	YDimension int64
	ImagePath  *string
	Price      *int64
}

// Lookup is a row of rooms, types or colors.
type Lookup struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// User is an account. The digest never leaves the server.
type User struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	PasswordDigest string `json:"-"`
	IsAdmin        bool   `json:"is_admin"`
}

// SnapshotInfo describes a snapshot written by the worker.
type SnapshotInfo struct {
	Path string
	Size int64
}

// Search attributes understood by the search engine, in predicate order.
const (
	AttrRoom  = "room"
	AttrType  = "type"
	AttrColor = "color"
	AttrName  = "name"
)

// SearchAttributes lists every filterable attribute.
var SearchAttributes = []string{AttrRoom, AttrType, AttrColor, AttrName}

// SearchFilter pairs filter values with per-attribute activation flags.
// An attribute contributes a predicate only when Active[attr] is true.
type SearchFilter struct {
	Values map[string]*string
	Active map[string]bool
}

// NewSearchFilter returns a filter with every known attribute present and inactive.
func NewSearchFilter() SearchFilter {
	f := SearchFilter{
		Values: make(map[string]*string, len(SearchAttributes)),
		Active: make(map[string]bool, len(SearchAttributes)),
	}
	for _, a := range SearchAttributes {
		f.Values[a] = nil
		f.Active[a] = false
	}
	return f
}

// Value returns the filter value for attr when it is active.
func (f SearchFilter) Value(attr string) (string, bool) {
	if !f.Active[attr] {
		return "", false
	}
	v := f.Values[attr]
	if v == nil {
		return "", false
	}
	return *v, true
}
