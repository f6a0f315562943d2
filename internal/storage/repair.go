package storage

import (
	"context"
	"fmt"
	"strings"
)

// RepairReport contains the results of a consistency check.
type RepairReport struct {
	// Problems holds every integrity_check line other than "ok".
	Problems []string
	// OrphanItems are fournitures whose room, type or color row is gone.
	// They can only appear in files written with foreign keys disabled.
	OrphanItems []int64
	Repaired    bool
}

func (r *RepairReport) Clean() bool {
	return len(r.Problems) == 0 && len(r.OrphanItems) == 0
}

// CheckConsistency runs SQLite's integrity check and looks for items with
// dangling lookup references.
func (c *Catalog) CheckConsistency(ctx context.Context) (*RepairReport, error) {
	report := &RepairReport{}

	rows, err := c.sql.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return nil, fmt.Errorf("integrity check: %w", err)
	}
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			rows.Close()
			return nil, err
		}
		if !strings.EqualFold(line, "ok") {
			report.Problems = append(report.Problems, line)
		}
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = c.sql.QueryContext(ctx, "PRAGMA foreign_key_check(fournitures)")
	if err != nil {
		return nil, fmt.Errorf("foreign key check: %w", err)
	}
	defer rows.Close()
	seen := make(map[int64]bool)
	for rows.Next() {
		var (
			table, parent string
			rowid, fkid   int64
		)
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return nil, err
		}
		if !seen[rowid] {
			seen[rowid] = true
			report.OrphanItems = append(report.OrphanItems, rowid)
		}
	}
	return report, rows.Err()
}

// RepairOrphans deletes items with dangling lookup references. Integrity
// problems reported by SQLite itself are left alone.
func (c *Catalog) RepairOrphans(ctx context.Context) (*RepairReport, error) {
	report, err := c.CheckConsistency(ctx)
	if err != nil {
		return nil, err
	}
	if len(report.OrphanItems) == 0 {
		return report, nil
	}

	tx, err := c.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	for _, id := range report.OrphanItems {
		if _, err := tx.ExecContext(ctx, "DELETE FROM fournitures WHERE id = ?", id); err != nil {
			return nil, fmt.Errorf("delete orphan item %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	report.Repaired = true
	return report, nil
}

// VerifyIntegrity returns an error describing any inconsistency.
func (c *Catalog) VerifyIntegrity(ctx context.Context) error {
	report, err := c.CheckConsistency(ctx)
	if err != nil {
		return err
	}
	if !report.Clean() {
		return fmt.Errorf("integrity check failed: %d problems, %d orphan items",
			len(report.Problems), len(report.OrphanItems))
	}
	return nil
}
