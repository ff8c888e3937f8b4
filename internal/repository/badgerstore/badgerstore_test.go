package badgerstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photo-share/internal/apperror"
	"github.com/sakif/photo-share/internal/model"
	"github.com/sakif/photo-share/internal/repository"
	"github.com/sakif/photo-share/internal/repository/badgerstore"
)

func newTestStore(t *testing.T) repository.Store {
	t.Helper()
	db, err := badgerstore.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, s repository.Store, login string) {
	t.Helper()
	_, err := s.Users().Upsert(context.Background(), &model.User{
		GitHubLogin: login,
		Name:        "Test " + login,
		GitHubToken: "token-" + login,
	})
	require.NoError(t, err)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert creates then replaces", func(t *testing.T) {
		s := newTestStore(t)

		created, err := s.Users().Upsert(ctx, &model.User{GitHubLogin: "octocat", Name: "Old", GitHubToken: "gho_old"})
		require.NoError(t, err)
		assert.True(t, created)

		created, err = s.Users().Upsert(ctx, &model.User{GitHubLogin: "octocat", Name: "New", GitHubToken: "gho_new"})
		require.NoError(t, err)
		assert.False(t, created)

		n, err := s.Users().Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		u, err := s.Users().GetByToken(ctx, "gho_new")
		require.NoError(t, err)
		assert.Equal(t, "New", u.Name)
		assert.Equal(t, "gho_new", u.GitHubToken)

		_, err = s.Users().GetByToken(ctx, "gho_old")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("lookups miss with not found", func(t *testing.T) {
		s := newTestStore(t)

		_, err := s.Users().GetByLogin(ctx, "nobody")
		assert.ErrorIs(t, err, apperror.ErrNotFound)

		_, err = s.Users().GetByToken(ctx, "")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("insert many is all or nothing", func(t *testing.T) {
		s := newTestStore(t)
		seedUser(t, s, "taken")

		err := s.Users().InsertMany(ctx, []model.User{{GitHubLogin: "fresh"}, {GitHubLogin: "taken"}})
		assert.ErrorIs(t, err, apperror.ErrValidation)

		_, err = s.Users().GetByLogin(ctx, "fresh")
		assert.ErrorIs(t, err, apperror.ErrNotFound)

		require.NoError(t, s.Users().InsertMany(ctx, []model.User{{GitHubLogin: "zed"}, {GitHubLogin: "amy"}}))
		users, err := s.Users().List(ctx)
		require.NoError(t, err)
		require.Len(t, users, 3)
		assert.Equal(t, "amy", users[0].GitHubLogin)
	})

	t.Run("empty list is non-nil", func(t *testing.T) {
		s := newTestStore(t)
		users, err := s.Users().List(ctx)
		require.NoError(t, err)
		assert.NotNil(t, users)
		assert.Empty(t, users)
	})
}

func TestPhotos(t *testing.T) {
	ctx := context.Background()

	t.Run("insert assigns id and created", func(t *testing.T) {
		s := newTestStore(t)
		seedUser(t, s, "alice")

		p := &model.Photo{Name: "sunset", Category: model.CategoryLandscape, UserID: "alice"}
		require.NoError(t, s.Photos().Insert(ctx, p))
		assert.NotEmpty(t, p.ID)
		assert.False(t, p.Created.IsZero())

		got, err := s.Photos().GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "sunset", got.Name)
		assert.True(t, got.Created.Equal(p.Created))
	})

	t.Run("unknown owner is rejected", func(t *testing.T) {
		s := newTestStore(t)
		err := s.Photos().Insert(ctx, &model.Photo{Name: "orphan", UserID: "ghost"})
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("listings are ordered by creation", func(t *testing.T) {
		s := newTestStore(t)
		seedUser(t, s, "alice")
		seedUser(t, s, "bob")

		base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		for i, owner := range []string{"bob", "alice", "alice"} {
			p := &model.Photo{Name: owner, UserID: owner, Category: model.CategoryPortrait, Created: base.Add(time.Duration(3-i) * time.Hour)}
			require.NoError(t, s.Photos().Insert(ctx, p))
		}

		all, err := s.Photos().List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.True(t, all[0].Created.Before(all[1].Created))
		assert.True(t, all[1].Created.Before(all[2].Created))

		alices, err := s.Photos().ListByUser(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, alices, 2)

		n, err := s.Photos().Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestTags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "alice")
	seedUser(t, s, "bob")
	seedUser(t, s, "carol")

	beach := &model.Photo{Name: "beach", UserID: "alice", Category: model.CategoryAction}
	require.NoError(t, s.Photos().Insert(ctx, beach))

	require.NoError(t, s.Tags().Insert(ctx, model.Tag{PhotoID: beach.ID, UserID: "carol"}))
	require.NoError(t, s.Tags().Insert(ctx, model.Tag{PhotoID: beach.ID, UserID: "bob"}))
	require.NoError(t, s.Tags().Insert(ctx, model.Tag{PhotoID: beach.ID, UserID: "bob"}))

	users, err := s.Tags().TaggedUsers(ctx, beach.ID)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].GitHubLogin)
	assert.Equal(t, "carol", users[1].GitHubLogin)

	photos, err := s.Tags().PhotosTagging(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, beach.ID, photos[0].ID)

	none, err := s.Tags().PhotosTagging(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, none)
}
