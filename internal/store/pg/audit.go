package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
)

// Audit implements audit.Store over the append-only audit_entries table.
type Audit struct {
	db *sql.DB
}

var _ audit.Store = (*Audit)(nil)

const auditColumns = `id, target_id, resource, user_id, user_name, user_role, action, ts, details, changes, ip, request_id`

func (s *Audit) Append(ctx context.Context, e audit.Entry) error {
	var changes []byte
	if len(e.Changes) > 0 {
		b, err := json.Marshal(e.Changes)
		if err != nil {
			return fmt.Errorf("encode changes: %w", err)
		}
		changes = b
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_entries (`+auditColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, e.ID, e.TargetID, e.Resource, e.UserID, e.UserName, e.UserRole, string(e.Action), e.Timestamp,
		e.Details, changes, e.IP, e.RequestID)
	return mapErr(err, "audit entry "+e.ID)
}

func (s *Audit) ByTarget(ctx context.Context, targetID string) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+auditColumns+`
		from audit_entries
		where target_id=$1
		order by ts asc, id asc
	`, targetID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// All selects the newest matching entries and returns them oldest first.
func (s *Audit) All(ctx context.Context, q audit.Query) ([]audit.Entry, error) {
	var since sql.NullTime
	if !q.Since.IsZero() {
		since = sql.NullTime{Time: q.Since, Valid: true}
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+auditColumns+` from (
			select `+auditColumns+`
			from audit_entries
			where ($1::text is null or action = $1)
			  and ($2::timestamptz is null or ts >= $2)
			order by ts desc, id desc
			limit $3
		) newest
		order by ts asc, id asc
	`, nullIfEmpty(string(q.Action)), since, q.EffectiveLimit())
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	defer rows.Close()
	out := []audit.Entry{}
	for rows.Next() {
		var (
			e       audit.Entry
			action  string
			ts      time.Time
			changes []byte
		)
		if err := rows.Scan(&e.ID, &e.TargetID, &e.Resource, &e.UserID, &e.UserName, &e.UserRole, &action, &ts,
			&e.Details, &changes, &e.IP, &e.RequestID); err != nil {
			return nil, err
		}
		e.Action = audit.Action(action)
		e.Timestamp = ts.UTC()
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &e.Changes); err != nil {
				return nil, fmt.Errorf("decode changes for %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
