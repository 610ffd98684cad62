package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/moc"
)

// maxListRows caps unbounded List calls.
const maxListRows = 1000

// MOCs implements moc.Store over the mocs and moc_history tables.
type MOCs struct {
	db *sql.DB
}

var _ moc.Store = (*MOCs)(nil)

const mocColumns = `id, title, description, scope, justification, type, facility_id, requester_id, status, created_at, updated_at, version, risk`

func (s *MOCs) Create(ctx context.Context, req moc.Request) error {
	riskJSON, err := encodeRisk(req.Risk)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into mocs (`+mocColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, req.ID, req.Title, req.Description, req.Scope, req.Justification, string(req.Type),
		req.FacilityID, req.RequesterID, string(req.Status), req.CreatedAt, req.UpdatedAt, req.Version, riskJSON); err != nil {
		return mapErr(err, "MOC "+req.ID)
	}
	if err := insertHistory(ctx, tx, req.ID, 0, req.History); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *MOCs) Get(ctx context.Context, id string) (moc.Request, error) {
	row := s.db.QueryRowContext(ctx, `select `+mocColumns+` from mocs where id=$1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return moc.Request{}, fmt.Errorf("%w: MOC %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return moc.Request{}, err
	}
	if req.History, err = s.history(ctx, id); err != nil {
		return moc.Request{}, err
	}
	return req, nil
}

// List returns matching requests newest first, each with its full history.
func (s *MOCs) List(ctx context.Context, f moc.Filter) ([]moc.Request, error) {
	limit := f.Limit
	if limit <= 0 || limit > maxListRows {
		limit = maxListRows
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+mocColumns+`
		from mocs
		where ($1::text is null or status = $1)
		  and ($2::text is null or facility_id = $2)
		  and ($3::text is null or requester_id = $3)
		order by created_at desc, id desc
		limit $4
	`, nullIfEmpty(string(f.Status)), nullIfEmpty(f.FacilityID), nullIfEmpty(f.RequesterID), limit)
	if err != nil {
		return nil, err
	}
	var out []moc.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		if out[i].History, err = s.history(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Update rewrites the row only while version still equals expectedVersion and
// appends the new history entries in the same transaction.
func (s *MOCs) Update(ctx context.Context, req moc.Request, expectedVersion int64, appended ...moc.HistoryEntry) error {
	riskJSON, err := encodeRisk(req.Risk)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update mocs
		set title=$3, description=$4, scope=$5, justification=$6, type=$7, facility_id=$8,
		    status=$9, updated_at=$10, version=$11, risk=$12
		where id=$1 and version=$2
	`, req.ID, expectedVersion, req.Title, req.Description, req.Scope, req.Justification, string(req.Type),
		req.FacilityID, string(req.Status), req.UpdatedAt, req.Version, riskJSON)
	if err != nil {
		return mapErr(err, "MOC "+req.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var current int64
		err := tx.QueryRowContext(ctx, `select version from mocs where id=$1`, req.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: MOC %s", apperr.ErrNotFound, req.ID)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: MOC %s is at version %d, expected %d", apperr.ErrConflict, req.ID, current, expectedVersion)
	}
	if err := insertHistory(ctx, tx, req.ID, len(req.History)-len(appended), appended); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *MOCs) history(ctx context.Context, mocID string) ([]moc.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, user_name, action, ts, type, details
		from moc_history
		where moc_id=$1
		order by position asc
	`, mocID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []moc.HistoryEntry{}
	for rows.Next() {
		var (
			e   moc.HistoryEntry
			typ string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserName, &e.Action, &e.Timestamp, &typ, &e.Details); err != nil {
			return nil, err
		}
		e.Type = moc.EntryType(typ)
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertHistory(ctx context.Context, tx *sql.Tx, mocID string, start int, entries []moc.HistoryEntry) error {
	for i, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			insert into moc_history (id, moc_id, position, user_id, user_name, action, type, details, ts)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, e.ID, mocID, start+i, e.UserID, e.UserName, e.Action, string(e.Type), e.Details, e.Timestamp); err != nil {
			return mapErr(err, "history entry "+e.ID)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (moc.Request, error) {
	var (
		req         moc.Request
		typ, status string
		riskJSON    []byte
	)
	if err := row.Scan(&req.ID, &req.Title, &req.Description, &req.Scope, &req.Justification, &typ,
		&req.FacilityID, &req.RequesterID, &status, &req.CreatedAt, &req.UpdatedAt, &req.Version, &riskJSON); err != nil {
		return moc.Request{}, err
	}
	req.Type = moc.Type(typ)
	req.Status = moc.Status(status)
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	if len(riskJSON) > 0 {
		var rr moc.RiskRecord
		if err := json.Unmarshal(riskJSON, &rr); err != nil {
			return moc.Request{}, fmt.Errorf("decode risk for %s: %w", req.ID, err)
		}
		req.Risk = &rr
	}
	req.History = []moc.HistoryEntry{}
	return req, nil
}

func encodeRisk(r *moc.RiskRecord) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	// Only the inputs are persisted; the classification is derived on read.
	b, err := json.Marshal(moc.StoredRisk(*r))
	if err != nil {
		return nil, fmt.Errorf("encode risk: %w", err)
	}
	return b, nil
}
