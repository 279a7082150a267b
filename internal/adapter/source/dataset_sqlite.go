package source

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"kisaanmitra/internal/domain"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LoadSQLiteTable reads every row of table from the SQLite database at path.
// The connection is closed before returning; the result lives in memory.
func LoadSQLiteTable(ctx context.Context, path, table string) (*Table, error) {
	if !tableNameRe.MatchString(table) {
		return nil, domain.NewDomainError("LoadSQLiteTable", domain.ErrInvalidInput, fmt.Sprintf("table name %q", table))
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, domain.NewDomainError("LoadSQLiteTable", domain.ErrDatasetLoad, fmt.Sprintf("open %s: %v", path, err))
	}
	defer db.Close()

	rows, err := db.QueryxContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return nil, domain.NewDomainError("LoadSQLiteTable", domain.ErrDatasetLoad, fmt.Sprintf("query %s: %v", table, err))
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, domain.NewDomainError("LoadSQLiteTable", domain.ErrDatasetLoad, err.Error())
	}

	var records [][]string
	for rows.Next() {
		cells, err := rows.SliceScan()
		if err != nil {
			return nil, domain.NewDomainError("LoadSQLiteTable", domain.ErrDatasetLoad, fmt.Sprintf("scan %s: %v", table, err))
		}
		rec := make([]string, len(cells))
		for i, c := range cells {
			rec[i] = cellString(c)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewDomainError("LoadSQLiteTable", domain.ErrDatasetLoad, err.Error())
	}

	return NewTable(path+"#"+table, header, records)
}

func cellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(c)
	case string:
		return c
	default:
		return fmt.Sprint(c)
	}
}
