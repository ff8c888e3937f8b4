package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/photo-share/internal/apperror"
	"github.com/sakif/photo-share/internal/model"
	"github.com/sakif/photo-share/internal/repository"
)

// compile-time check that *PhotoDB implements repository.PhotoRepository
var _ repository.PhotoRepository = (*PhotoDB)(nil)

// PhotoDB is the photos collection.
type PhotoDB struct {
	conn *sql.DB
}

const photoColumns = `id, name, description, category, user_id, created`

func scanPhoto(s scanner) (*model.Photo, error) {
	var (
		p        model.Photo
		category string
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &category, &p.UserID, &p.Created); err != nil {
		return nil, err
	}
	p.Category = model.PhotoCategory(category)
	return &p, nil
}

// Count returns the number of stored photos.
func (p *PhotoDB) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM photos`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting photos: %w", err)
	}
	return n, nil
}

// List returns every photo, oldest first.
func (p *PhotoDB) List(ctx context.Context) ([]model.Photo, error) {
	return queryPhotos(ctx, p.conn, `SELECT `+photoColumns+` FROM photos ORDER BY created, id`)
}

// GetByID finds a single photo.
func (p *PhotoDB) GetByID(ctx context.Context, id string) (*model.Photo, error) {
	photo, err := scanPhoto(p.conn.QueryRowContext(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("photo", id)
		}
		return nil, fmt.Errorf("sqlite: getting photo %s: %w", id, err)
	}
	return photo, nil
}

// ListByUser returns the photos posted by githubLogin.
func (p *PhotoDB) ListByUser(ctx context.Context, githubLogin string) ([]model.Photo, error) {
	return queryPhotos(ctx, p.conn,
		`SELECT `+photoColumns+` FROM photos WHERE user_id = ? ORDER BY created, id`, githubLogin)
}

// Insert stores a new photo.
//
// ID GENERATION:
// xid ids are globally unique, sortable by creation time, and need no
// coordination, so concurrent inserts can never collide.
func (p *PhotoDB) Insert(ctx context.Context, photo *model.Photo) error {
	photo.ID = xid.New().String()
	if photo.Created.IsZero() {
		photo.Created = time.Now()
	}
	photo.Created = photo.Created.UTC()

	_, err := p.conn.ExecContext(ctx,
		`INSERT INTO photos (`+photoColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		photo.ID,
		photo.Name,
		photo.Description,
		string(photo.Category),
		photo.UserID,
		photo.Created,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting photo: %w", err)
	}
	return nil
}

func queryPhotos(ctx context.Context, conn *sql.DB, q string, args ...any) ([]model.Photo, error) {
	rows, err := conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing photos: %w", err)
	}
	defer rows.Close()

	photos := []model.Photo{}
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning photo: %w", err)
		}
		photos = append(photos, *photo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating photos: %w", err)
	}
	return photos, nil
}
