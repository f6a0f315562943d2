package storage

import (
	"context"
	"database/sql/driver"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"modernc.org/sqlite"

	"catalogd/internal/types"
)

// foldFunc is the SQL name of foldName. It is registered on the driver, so
// every connection opened afterwards can use it.
const foldFunc = "catalog_fold"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(foldFunc, 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case string:
				return foldName(v), nil
			case []byte:
				return foldName(string(v)), nil
			}
			return nil, nil
		})
}

// foldName maps s to a form where case-insensitive comparison is plain
// equality, for any script: "Étagère", "ÉTAGÈRE" and "étagère" fold alike.
func foldName(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// joinedAttrs are filtered by joining the lookup table and matching its name.
var joinedAttrs = []struct {
	attr  string
	table types.Table
	alias string
}{
	{types.AttrRoom, types.TableRooms, "r"},
	{types.AttrType, types.TableTypes, "t"},
	{types.AttrColor, types.TableColors, "c"},
}

// Search returns the items matching every active attribute of f. Lookup
// attributes match exactly on the lookup name; the name attribute is a
// case-insensitive substring match. No active attribute returns every item.
func (c *Catalog) Search(ctx context.Context, f types.SearchFilter) ([]types.Item, error) {
	var (
		sb    strings.Builder
		where []string
		args  []any
	)
	sb.WriteString("SELECT " + itemColumns + " FROM fournitures f")

	for _, j := range joinedAttrs {
		v, ok := f.Value(j.attr)
		if !ok {
			continue
		}
		sb.WriteString(" JOIN " + string(j.table) + " " + j.alias + " ON f." + j.attr + " = " + j.alias + ".id")
		where = append(where, j.alias+".name = ?")
		args = append(args, v)
	}
	if v, ok := f.Value(types.AttrName); ok && v != "" {
		where = append(where, "instr("+foldFunc+"(f.name), ?) > 0")
		args = append(args, foldName(v))
	}

	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY f.id")
	return c.queryItems(ctx, sb.String(), args...)
}
