package service

import (
	"context"
	"log/slog"

	"github.com/sakif/photo-share/internal/auth"
	"github.com/sakif/photo-share/internal/model"
)

// UserService answers the read side of users. Nothing here requires an
// authenticated caller.
type UserService struct {
	logger *slog.Logger
}

func NewUserService(logger *slog.Logger) *UserService {
	return &UserService{logger: logger}
}

func (s *UserService) Total(ctx context.Context, rc *auth.RequestContext) (int, error) {
	n, err := rc.Store.Users().Count(ctx)
	if err != nil {
		return 0, storeError(err)
	}
	return n, nil
}

func (s *UserService) All(ctx context.Context, rc *auth.RequestContext) ([]model.User, error) {
	users, err := rc.Store.Users().List(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return users, nil
}

func (s *UserService) Get(ctx context.Context, rc *auth.RequestContext, githubLogin string) (*model.User, error) {
	user, err := rc.Store.Users().GetByLogin(ctx, githubLogin)
	if err != nil {
		return nil, storeError(err)
	}
	return user, nil
}

// Me is the current user, or nil for an anonymous caller.
func (s *UserService) Me(rc *auth.RequestContext) *model.User {
	return rc.CurrentUser
}

// PostedPhotos lists the photos user owns.
func (s *UserService) PostedPhotos(ctx context.Context, rc *auth.RequestContext, user *model.User) ([]model.Photo, error) {
	photos, err := rc.Store.Photos().ListByUser(ctx, user.GitHubLogin)
	if err != nil {
		return nil, storeError(err)
	}
	return photos, nil
}

// InPhotos lists the photos user is tagged in.
func (s *UserService) InPhotos(ctx context.Context, rc *auth.RequestContext, user *model.User) ([]model.Photo, error) {
	photos, err := rc.Store.Tags().PhotosTagging(ctx, user.GitHubLogin)
	if err != nil {
		return nil, storeError(err)
	}
	return photos, nil
}
