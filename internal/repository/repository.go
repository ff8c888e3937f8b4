// Package repository declares the Persistence Adapter: typed accessors over
// the users, photos and tags collections. It holds no business rules.
//
// Every lookup that finds nothing returns an error wrapping
// apperror.ErrNotFound. Listings return an empty (non-nil) slice instead.
package repository

import (
	"context"

	"github.com/sakif/photo-share/internal/model"
)

type UserRepository interface {
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]model.User, error)
	GetByLogin(ctx context.Context, githubLogin string) (*model.User, error)
	GetByToken(ctx context.Context, githubToken string) (*model.User, error)
	// Upsert replaces the user keyed by GitHubLogin, inserting it when absent.
	// created reports whether a new row was inserted.
	Upsert(ctx context.Context, user *model.User) (created bool, err error)
	InsertMany(ctx context.Context, users []model.User) error
}

type PhotoRepository interface {
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]model.Photo, error)
	GetByID(ctx context.Context, id string) (*model.Photo, error)
	ListByUser(ctx context.Context, githubLogin string) ([]model.Photo, error)
	// Insert assigns photo.ID (and Created when zero) before storing it.
	Insert(ctx context.Context, photo *model.Photo) error
}

type TagRepository interface {
	Insert(ctx context.Context, tag model.Tag) error
	// TaggedUsers joins tags → users for one photo.
	TaggedUsers(ctx context.Context, photoID string) ([]model.User, error)
	// PhotosTagging joins tags → photos for one user.
	PhotosTagging(ctx context.Context, githubLogin string) ([]model.Photo, error)
}

// Store is the process-wide handle the server opens once at startup.
type Store interface {
	Users() UserRepository
	Photos() PhotoRepository
	Tags() TagRepository
	Close() error
}
