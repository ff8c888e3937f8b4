package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/rs/xid"

	"github.com/sakif/photo-share/internal/apperror"
	"github.com/sakif/photo-share/internal/model"
	"github.com/sakif/photo-share/internal/repository"
)

var _ repository.PhotoRepository = (*PhotoStore)(nil)

// PhotoStore is the photos collection.
type PhotoStore struct {
	db *badger.DB
}

func (p *PhotoStore) Count(ctx context.Context) (int, error) {
	n, err := countPrefix(p.db, prefixPhoto)
	if err != nil {
		return 0, fmt.Errorf("badger: counting photos: %w", err)
	}
	return n, nil
}

func (p *PhotoStore) List(ctx context.Context) ([]model.Photo, error) {
	return p.filter(func(model.Photo) bool { return true })
}

func (p *PhotoStore) ListByUser(ctx context.Context, githubLogin string) ([]model.Photo, error) {
	return p.filter(func(ph model.Photo) bool { return ph.UserID == githubLogin })
}

func (p *PhotoStore) GetByID(ctx context.Context, id string) (*model.Photo, error) {
	var photo *model.Photo
	err := p.db.View(func(txn *badger.Txn) error {
		var err error
		photo, err = getPhoto(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return photo, nil
}

// Insert assigns an xid and a creation time (when unset), then stores the
// photo. The owner must exist, mirroring the foreign key on the SQL side.
func (p *PhotoStore) Insert(ctx context.Context, photo *model.Photo) error {
	id := xid.New().String()
	created := photo.Created
	if created.IsZero() {
		created = time.Now()
	}
	created = created.UTC()

	err := update(p.db, func(txn *badger.Txn) error {
		if _, err := txn.Get(key("user", photo.UserID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return apperror.NotFound("user", photo.UserID)
			}
			return err
		}
		stored := *photo
		stored.ID = id
		stored.Created = created
		return setJSON(txn, key("photo", id), stored)
	})
	if err != nil {
		return fmt.Errorf("badger: inserting photo: %w", err)
	}

	photo.ID = id
	photo.Created = created
	return nil
}

// filter scans every photo and keeps those matching keep, ordered the same
// way the SQL backend orders them.
func (p *PhotoStore) filter(keep func(model.Photo) bool) ([]model.Photo, error) {
	photos := []model.Photo{}
	err := p.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixPhoto)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var ph model.Photo
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &ph)
			})
			if err != nil {
				return err
			}
			if keep(ph) {
				photos = append(photos, ph)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: listing photos: %w", err)
	}
	sortPhotos(photos)
	return photos, nil
}

func sortPhotos(photos []model.Photo) {
	slices.SortStableFunc(photos, func(a, b model.Photo) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

func getPhoto(txn *badger.Txn, id string) (*model.Photo, error) {
	var photo model.Photo
	err := getJSON(txn, key("photo", id), &photo)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperror.NotFound("photo", id)
	}
	if err != nil {
		return nil, fmt.Errorf("badger: getting photo %s: %w", id, err)
	}
	return &photo, nil
}
