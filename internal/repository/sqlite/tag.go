package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/photo-share/internal/model"
	"github.com/sakif/photo-share/internal/repository"
)

// compile-time check that *TagDB implements repository.TagRepository
var _ repository.TagRepository = (*TagDB)(nil)

// TagDB is the photo ↔ user bridge collection.
type TagDB struct {
	conn *sql.DB
}

// Insert records that tag.UserID appears in tag.PhotoID. Tagging the same
// pair twice is a no-op.
func (t *TagDB) Insert(ctx context.Context, tag model.Tag) error {
	_, err := t.conn.ExecContext(ctx,
		`INSERT INTO tags (photo_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		tag.PhotoID, tag.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: tagging %s in photo %s: %w", tag.UserID, tag.PhotoID, err)
	}
	return nil
}

// TaggedUsers returns the users tagged in photoID.
func (t *TagDB) TaggedUsers(ctx context.Context, photoID string) ([]model.User, error) {
	u := &UserDB{conn: t.conn}
	return u.query(ctx,
		`SELECT u.github_login, u.name, u.avatar, u.github_token
		 FROM tags t JOIN users u ON u.github_login = t.user_id
		 WHERE t.photo_id = ?
		 ORDER BY u.github_login`,
		photoID,
	)
}

// PhotosTagging returns the photos githubLogin is tagged in.
func (t *TagDB) PhotosTagging(ctx context.Context, githubLogin string) ([]model.Photo, error) {
	return queryPhotos(ctx, t.conn,
		`SELECT p.id, p.name, p.description, p.category, p.user_id, p.created
		 FROM tags t JOIN photos p ON p.id = t.photo_id
		 WHERE t.user_id = ?
		 ORDER BY p.created, p.id`,
		githubLogin,
	)
}
