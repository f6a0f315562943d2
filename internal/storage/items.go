package storage

import (
	"context"
	"database/sql"
	"errors"

	"catalogd/internal/types"
)

const itemColumns = "f.id, f.name, f.room, f.type, f.color, f.image_path, f.x_dimension, f.y_dimension, f.price"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (types.Item, error) {
	var (
		it    types.Item
		image sql.NullString
		price sql.NullInt64
	)
	if err := r.Scan(&it.ID, &it.Name, &it.Room, &it.Type, &it.Color, &image, &it.XDimension, &it.YDimension, &price); err != nil {
		return types.Item{}, err
	}
	if image.Valid {
		s := image.String
		it.ImagePath = &s
	}
	if price.Valid {
		p := price.Int64
		it.Price = &p
	}
	return it, nil
}

func (c *Catalog) queryItems(ctx context.Context, query string, args ...any) ([]types.Item, error) {
	rows, err := c.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// AddItem resolves the item's room, type and color (in that order) and inserts
// it. Item names are not unique; the returned id identifies the row.
func (c *Catalog) AddItem(ctx context.Context, in types.NewItem) (int64, error) {
	if in.Name == "" {
		return 0, errors.New("name is required")
	}
	room, err := c.LookupByName(ctx, types.TableRooms, in.Room)
	if err != nil {
		return 0, err
	}
	typ, err := c.LookupByName(ctx, types.TableTypes, in.Type)
	if err != nil {
		return 0, err
	}
	color, err := c.LookupByName(ctx, types.TableColors, in.Color)
	if err != nil {
		return 0, err
	}

	res, err := c.sql.ExecContext(ctx, `
INSERT INTO fournitures (name, room, type, color, image_path, x_dimension, y_dimension, price)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, in.Name, room.ID, typ.ID, color.ID, nullString(in.ImagePath), in.XDimension, in.YDimension, nullInt(in.Price))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (c *Catalog) ItemByID(ctx context.Context, id int64) (*types.Item, error) {
	it, err := scanItem(c.sql.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM fournitures f WHERE f.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Thing: types.TableItems.Thing()}
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// ItemByName returns the lowest-id item with the given name.
func (c *Catalog) ItemByName(ctx context.Context, name string) (*types.Item, error) {
	it, err := scanItem(c.sql.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM fournitures f WHERE f.name = ? ORDER BY f.id LIMIT 1", name))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Thing: types.TableItems.Thing()}
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (c *Catalog) ListItems(ctx context.Context) ([]types.Item, error) {
	return c.queryItems(ctx, "SELECT "+itemColumns+" FROM fournitures f ORDER BY f.id")
}

func (c *Catalog) DeleteItem(ctx context.Context, id int64) error {
	res, err := c.sql.ExecContext(ctx, "DELETE FROM fournitures WHERE id = ?", id)
	if err != nil {
		return err
	}
	return affectedOne(res, types.TableItems)
}

// SetItemImage points an existing item at imagePath.
func (c *Catalog) SetItemImage(ctx context.Context, id int64, imagePath string) error {
	res, err := c.sql.ExecContext(ctx, "UPDATE fournitures SET image_path = ? WHERE id = ?", imagePath, id)
	if err != nil {
		return err
	}
	return affectedOne(res, types.TableItems)
}

func affectedOne(res sql.Result, t types.Table) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &NotFoundError{Thing: t.Thing()}
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
