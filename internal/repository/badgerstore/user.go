package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/sakif/photo-share/internal/apperror"
	"github.com/sakif/photo-share/internal/model"
	"github.com/sakif/photo-share/internal/repository"
)

var _ repository.UserRepository = (*UserStore)(nil)

// userRecord is the stored shape of a user. model.User hides the token from
// JSON, so the record spells it out.
type userRecord struct {
	GitHubLogin string `json:"githubLogin"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar"`
	GitHubToken string `json:"githubToken"`
}

func toRecord(u *model.User) userRecord {
	return userRecord{GitHubLogin: u.GitHubLogin, Name: u.Name, Avatar: u.Avatar, GitHubToken: u.GitHubToken}
}

func (r userRecord) user() model.User {
	return model.User{GitHubLogin: r.GitHubLogin, Name: r.Name, Avatar: r.Avatar, GitHubToken: r.GitHubToken}
}

// UserStore is the users collection.
type UserStore struct {
	db *badger.DB
}

func (u *UserStore) Count(ctx context.Context) (int, error) {
	n, err := countPrefix(u.db, prefixUser)
	if err != nil {
		return 0, fmt.Errorf("badger: counting users: %w", err)
	}
	return n, nil
}

func (u *UserStore) List(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	err := u.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixUser)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec userRecord
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			})
			if err != nil {
				return err
			}
			users = append(users, rec.user())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: listing users: %w", err)
	}
	return users, nil
}

func (u *UserStore) GetByLogin(ctx context.Context, githubLogin string) (*model.User, error) {
	var user *model.User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, githubLogin)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (u *UserStore) GetByToken(ctx context.Context, githubToken string) (*model.User, error) {
	if githubToken == "" {
		return nil, apperror.NotFound("user", "for token")
	}
	var user *model.User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key("token", githubToken))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return apperror.NotFound("user", "for token")
		}
		if err != nil {
			return fmt.Errorf("badger: reading token index: %w", err)
		}
		login, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("badger: reading token index: %w", err)
		}
		user, err = getUser(txn, string(login))
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Upsert replaces the user and moves the token index in one transaction.
func (u *UserStore) Upsert(ctx context.Context, user *model.User) (bool, error) {
	var created bool
	err := update(u.db, func(txn *badger.Txn) error {
		created = false
		existing, err := getUser(txn, user.GitHubLogin)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			created = true
		case err != nil:
			return err
		case existing.GitHubToken != "" && existing.GitHubToken != user.GitHubToken:
			if err := txn.Delete(key("token", existing.GitHubToken)); err != nil {
				return err
			}
		}
		return putUser(txn, user)
	})
	if err != nil {
		return false, fmt.Errorf("badger: upserting user %s: %w", user.GitHubLogin, err)
	}
	return created, nil
}

// InsertMany stores the batch atomically; an existing login aborts it.
func (u *UserStore) InsertMany(ctx context.Context, users []model.User) error {
	err := update(u.db, func(txn *badger.Txn) error {
		for i := range users {
			_, err := txn.Get(key("user", users[i].GitHubLogin))
			if err == nil {
				return apperror.ValidationFailed("githubLogin", "user "+users[i].GitHubLogin+" already exists")
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := putUser(txn, &users[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger: inserting user batch: %w", err)
	}
	return nil
}

func getUser(txn *badger.Txn, login string) (*model.User, error) {
	var rec userRecord
	err := getJSON(txn, key("user", login), &rec)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperror.NotFound("user", login)
	}
	if err != nil {
		return nil, fmt.Errorf("badger: getting user %s: %w", login, err)
	}
	user := rec.user()
	return &user, nil
}

func putUser(txn *badger.Txn, user *model.User) error {
	if err := setJSON(txn, key("user", user.GitHubLogin), toRecord(user)); err != nil {
		return err
	}
	if user.GitHubToken == "" {
		return nil
	}
	return txn.Set(key("token", user.GitHubToken), []byte(user.GitHubLogin))
}
