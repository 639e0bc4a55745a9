package postgres

import (
	"context"
	"fmt"
)

// TitleStore lists publication titles that are already stored downstream.
type TitleStore struct {
	db     DB
	table  string
	column string
}

// NewTitleStore builds a TitleStore reading column from table.
func NewTitleStore(db DB, table, column string) (*TitleStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "publications"
	}
	if column == "" {
		column = "title"
	}
	if err := checkIdentifier("table", table); err != nil {
		return nil, err
	}
	if err := checkIdentifier("column", column); err != nil {
		return nil, err
	}
	return &TitleStore{db: db, table: table, column: column}, nil
}

// ExistingTitles returns every non-null title in the table.
func (s *TitleStore) ExistingTitles(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s IS NOT NULL`, s.column, s.table, s.column)
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate titles: %w", err)
	}
	return titles, nil
}
