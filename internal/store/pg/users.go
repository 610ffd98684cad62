package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/auth"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/ids"
)

// Users implements auth.UserStore over the users table.
type Users struct {
	db *sql.DB
}

var _ auth.UserStore = (*Users)(nil)

func (s *Users) Create(ctx context.Context, u auth.User) (auth.User, error) {
	u, err := auth.NormalizeUser(u)
	if err != nil {
		return auth.User{}, err
	}
	if strings.TrimSpace(u.ID) == "" {
		u.ID = ids.WithPrefix("USR")
	}
	_, err = s.db.ExecContext(ctx, `
		insert into users (id, name, email, role, active, password_hash)
		values ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Name, u.Email, string(u.Role), u.Active, u.PasswordHash)
	if err != nil {
		return auth.User{}, mapErr(err, "user "+u.Email)
	}
	return u, nil
}

func (s *Users) Find(ctx context.Context, id string) (auth.User, error) {
	return s.findOne(ctx, `select id, name, email, role, active, password_hash from users where id=$1`, strings.TrimSpace(id))
}

func (s *Users) FindByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.findOne(ctx, `select id, name, email, role, active, password_hash from users where email=$1`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Users) List(ctx context.Context) ([]auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name, email, role, active, password_hash from users order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Users) Update(ctx context.Context, u auth.User) (auth.User, error) {
	u, err := auth.NormalizeUser(u)
	if err != nil {
		return auth.User{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		update users set name=$2, email=$3, role=$4, active=$5, password_hash=$6, updated_at=now()
		where id=$1
	`, u.ID, u.Name, u.Email, string(u.Role), u.Active, u.PasswordHash)
	if err != nil {
		return auth.User{}, mapErr(err, "user "+u.Email)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return auth.User{}, err
	}
	if n == 0 {
		return auth.User{}, fmt.Errorf("%w: user %s", apperr.ErrNotFound, u.ID)
	}
	return u, nil
}

func (s *Users) findOne(ctx context.Context, query, arg string) (auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, fmt.Errorf("%w: user %s", apperr.ErrNotFound, arg)
	}
	return u, err
}

func scanUser(row rowScanner) (auth.User, error) {
	var (
		u    auth.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.Active, &u.PasswordHash); err != nil {
		return auth.User{}, err
	}
	u.Role = auth.Role(role)
	return u, nil
}
