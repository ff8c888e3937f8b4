package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/photo-share/internal/apperror"
	"github.com/sakif/photo-share/internal/auth"
	"github.com/sakif/photo-share/internal/model"
	"github.com/sakif/photo-share/internal/pubsub"
)

const MaxPhotoNameLength = 100

// PostPhotoInput is what a client supplies to postPhoto. Owner, id and
// creation time are never taken from the client.
type PostPhotoInput struct {
	Name        string
	Description string
	Category    model.PhotoCategory // empty means PORTRAIT
}

// PhotoService holds the rules for photos and the reads around them.
type PhotoService struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewPhotoService(logger *slog.Logger) *PhotoService {
	return &PhotoService{logger: logger, now: time.Now}
}

// Post stores a new photo owned by the current user and announces it on
// "photo-added".
//
// An anonymous caller is rejected before anything is written. The owner is
// always the authenticated user and the creation time is read from the
// service clock when the mutation runs. rc.RequestedAt is not used: a
// WebSocket connection builds its context once, at connection_init.
func (s *PhotoService) Post(ctx context.Context, rc *auth.RequestContext, in PostPhotoInput) (*model.Photo, error) {
	if !rc.Authenticated() {
		return nil, apperror.Unauthorized("Not authorized!")
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if len(name) > MaxPhotoNameLength {
		return nil, apperror.ValidationFailed("name", "name must be at most 100 characters")
	}
	category := in.Category
	if category == "" {
		category = model.CategoryPortrait
	}
	if !category.Valid() {
		return nil, apperror.ValidationFailed("category", "unknown category "+string(category))
	}

	photo := &model.Photo{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Category:    category,
		UserID:      rc.CurrentUser.GitHubLogin,
		Created:     s.now(),
	}
	if err := rc.Store.Photos().Insert(ctx, photo); err != nil {
		return nil, storeError(err)
	}

	s.logger.Info("photo posted",
		slog.String("photoID", photo.ID),
		slog.String("owner", photo.UserID),
	)

	// Fire and forget: a full or absent subscriber never fails the mutation.
	published := *photo
	rc.Bus.Publish(pubsub.TopicPhotoAdded, &published)

	return photo, nil
}

func (s *PhotoService) Total(ctx context.Context, rc *auth.RequestContext) (int, error) {
	n, err := rc.Store.Photos().Count(ctx)
	if err != nil {
		return 0, storeError(err)
	}
	return n, nil
}

// All lists every photo, or only those created strictly after after when
// it is non-zero.
func (s *PhotoService) All(ctx context.Context, rc *auth.RequestContext, after time.Time) ([]model.Photo, error) {
	photos, err := rc.Store.Photos().List(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	if after.IsZero() {
		return photos, nil
	}
	kept := photos[:0]
	for _, p := range photos {
		if p.Created.After(after) {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

func (s *PhotoService) Get(ctx context.Context, rc *auth.RequestContext, id string) (*model.Photo, error) {
	photo, err := rc.Store.Photos().GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return photo, nil
}

// PostedBy returns the owner of photo.
func (s *PhotoService) PostedBy(ctx context.Context, rc *auth.RequestContext, photo *model.Photo) (*model.User, error) {
	user, err := rc.Store.Users().GetByLogin(ctx, photo.UserID)
	if err != nil {
		return nil, storeError(err)
	}
	return user, nil
}

// TaggedUsers returns the users tagged in photo.
func (s *PhotoService) TaggedUsers(ctx context.Context, rc *auth.RequestContext, photo *model.Photo) ([]model.User, error) {
	users, err := rc.Store.Tags().TaggedUsers(ctx, photo.ID)
	if err != nil {
		return nil, storeError(err)
	}
	return users, nil
}
