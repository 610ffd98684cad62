package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/catalog"
)

// Documents implements catalog.DocumentStore over the documents table.
type Documents struct {
	db *sql.DB
}

var _ catalog.DocumentStore = (*Documents)(nil)

func (s *Documents) Get(ctx context.Context, kind, id string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `select body from documents where kind=$1 and id=$2`, kind, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", apperr.ErrNotFound, kind, id)
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Put inserts or replaces the document.
func (s *Documents) Put(ctx context.Context, kind, id string, doc []byte) error {
	_, err := s.db.ExecContext(ctx, `
		insert into documents (kind, id, body, updated_at)
		values ($1, $2, $3, now())
		on conflict (kind, id) do update
		set body = excluded.body, updated_at = excluded.updated_at
	`, kind, id, doc)
	return err
}

func (s *Documents) Delete(ctx context.Context, kind, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from documents where kind=$1 and id=$2`, kind, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", apperr.ErrNotFound, kind, id)
	}
	return nil
}

// List returns documents of kind ordered by id.
func (s *Documents) List(ctx context.Context, kind string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `select body from documents where kind=$1 order by id asc`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := [][]byte{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		out = append(out, body)
	}
	return out, rows.Err()
}
