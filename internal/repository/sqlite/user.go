package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/photo-share/internal/apperror"
	"github.com/sakif/photo-share/internal/model"
	"github.com/sakif/photo-share/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the users collection.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `github_login, name, avatar, github_token`

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	if err := s.Scan(&u.GitHubLogin, &u.Name, &u.Avatar, &u.GitHubToken); err != nil {
		return nil, err
	}
	return &u, nil
}

// Count returns the number of stored users.
func (u *UserDB) Count(ctx context.Context) (int, error) {
	var n int
	if err := u.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting users: %w", err)
	}
	return n, nil
}

// List returns every user ordered by login.
func (u *UserDB) List(ctx context.Context) ([]model.User, error) {
	return u.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY github_login`)
}

// GetByLogin finds the user with the given GitHub login.
func (u *UserDB) GetByLogin(ctx context.Context, githubLogin string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_login = ?`, githubLogin))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", githubLogin)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", githubLogin, err)
	}
	return user, nil
}

// GetByToken finds the user whose stored GitHub token equals githubToken.
// An empty token never matches, even though fake users may be stored
// without one.
func (u *UserDB) GetByToken(ctx context.Context, githubToken string) (*model.User, error) {
	if githubToken == "" {
		return nil, apperror.NotFound("user", "for token")
	}
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_token = ? LIMIT 1`, githubToken))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", "for token")
		}
		return nil, fmt.Errorf("sqlite: getting user by token: %w", err)
	}
	return user, nil
}

// Upsert inserts or replaces a user keyed by GitHub login.
//
// TWO STATEMENTS, EACH ATOMIC:
// INSERT ... ON CONFLICT DO NOTHING tells us (via RowsAffected) whether this
// is the first login. On a repeat login the UPDATE overwrites every profile
// field, so stale names, avatars and tokens never survive a re-login.
func (u *UserDB) Upsert(ctx context.Context, user *model.User) (bool, error) {
	res, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?)
		 ON CONFLICT(github_login) DO NOTHING`,
		user.GitHubLogin, user.Name, user.Avatar, user.GitHubToken,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: inserting user %s: %w", user.GitHubLogin, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: inserting user %s: %w", user.GitHubLogin, err)
	}
	if inserted == 1 {
		return true, nil
	}

	_, err = u.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, avatar = ?, github_token = ? WHERE github_login = ?`,
		user.Name, user.Avatar, user.GitHubToken, user.GitHubLogin,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: updating user %s: %w", user.GitHubLogin, err)
	}
	return false, nil
}

// InsertMany stores a batch of users in one transaction. A login that already
// exists fails the whole batch with a validation error naming it.
func (u *UserDB) InsertMany(ctx context.Context, users []model.User) error {
	tx, err := u.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning user batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: preparing user batch: %w", err)
	}
	defer stmt.Close()

	for _, user := range users {
		if _, err := stmt.ExecContext(ctx, user.GitHubLogin, user.Name, user.Avatar, user.GitHubToken); err != nil {
			if isConstraint(err) {
				return apperror.ValidationFailed("githubLogin", "user "+user.GitHubLogin+" already exists")
			}
			return fmt.Errorf("sqlite: inserting user %s: %w", user.GitHubLogin, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user batch: %w", err)
	}
	return nil
}

func (u *UserDB) query(ctx context.Context, q string, args ...any) ([]model.User, error) {
	rows, err := u.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

// isConstraint reports whether err is a SQLite constraint violation. The
// primary code sits in the low byte of extended result codes.
func isConstraint(err error) bool {
	var sqliteErr *moderncsqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
