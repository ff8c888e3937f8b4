package badgerstore

import (
	"context"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/sakif/photo-share/internal/model"
	"github.com/sakif/photo-share/internal/repository"
)

var _ repository.TagRepository = (*TagStore)(nil)

// TagStore keeps both directions of the photo ↔ user bridge so each join is
// a single prefix scan.
type TagStore struct {
	db *badger.DB
}

func (t *TagStore) Insert(ctx context.Context, tag model.Tag) error {
	err := update(t.db, func(txn *badger.Txn) error {
		if err := txn.Set(key("tag", tag.PhotoID, tag.UserID), nil); err != nil {
			return err
		}
		return txn.Set(key("usertag", tag.UserID, tag.PhotoID), nil)
	})
	if err != nil {
		return fmt.Errorf("badger: tagging %s in photo %s: %w", tag.UserID, tag.PhotoID, err)
	}
	return nil
}

func (t *TagStore) TaggedUsers(ctx context.Context, photoID string) ([]model.User, error) {
	users := []model.User{}
	err := t.db.View(func(txn *badger.Txn) error {
		logins := suffixes(txn, append(key("tag", photoID), '/'))
		sort.Strings(logins)
		for _, login := range logins {
			u, err := getUser(txn, login)
			if err != nil {
				return err
			}
			users = append(users, *u)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: tagged users of %s: %w", photoID, err)
	}
	return users, nil
}

func (t *TagStore) PhotosTagging(ctx context.Context, githubLogin string) ([]model.Photo, error) {
	photos := []model.Photo{}
	err := t.db.View(func(txn *badger.Txn) error {
		for _, id := range suffixes(txn, append(key("usertag", githubLogin), '/')) {
			p, err := getPhoto(txn, id)
			if err != nil {
				return err
			}
			photos = append(photos, *p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: photos tagging %s: %w", githubLogin, err)
	}
	sortPhotos(photos)
	return photos, nil
}
