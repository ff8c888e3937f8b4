package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/photo-share/internal/apperror"
	"github.com/sakif/photo-share/internal/auth"
	"github.com/sakif/photo-share/internal/model"
	"github.com/sakif/photo-share/internal/pubsub"
)

// =========================================================================
// Post TESTS
// =========================================================================

func TestPost_Success(t *testing.T) {
	rc := signIn(t, newTestRC(t), "alice")
	svc := NewPhotoService(testLogger())
	posted := time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC)
	svc.now = func() time.Time { return posted }
	added := rc.Bus.Subscribe(pubsub.TopicPhotoAdded)

	photo, err := svc.Post(context.Background(), rc, PostPhotoInput{Name: "  sunset  ", Description: "orange", Category: model.CategoryLandscape})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	if photo.ID == "" {
		t.Error("Post() did not assign an id")
	}
	if photo.UserID != "alice" {
		t.Errorf("UserID = %q, want the current user", photo.UserID)
	}
	if photo.Name != "sunset" {
		t.Errorf("Name = %q, want trimmed %q", photo.Name, "sunset")
	}
	if !photo.Created.Equal(posted) {
		t.Errorf("Created = %v, want clock time %v", photo.Created, posted)
	}

	select {
	case ev := <-added.Events():
		got := ev.(*model.Photo)
		if got.ID != photo.ID {
			t.Errorf("photo-added event id = %q, want %q", got.ID, photo.ID)
		}
		if got == photo {
			t.Error("published photo shares memory with the returned one")
		}
	default:
		t.Error("Post() did not publish on photo-added")
	}
}

func TestPost_DefaultsToPortrait(t *testing.T) {
	rc := signIn(t, newTestRC(t), "alice")

	photo, err := NewPhotoService(testLogger()).Post(context.Background(), rc, PostPhotoInput{Name: "me"})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if photo.Category != model.CategoryPortrait {
		t.Errorf("Category = %q, want PORTRAIT", photo.Category)
	}
}

func TestPost_AnonymousIsUnauthorizedAndWritesNothing(t *testing.T) {
	rc := newTestRC(t)

	_, err := NewPhotoService(testLogger()).Post(context.Background(), rc, PostPhotoInput{Name: "sneaky"})
	wantCode(t, err, apperror.ErrUnauthorized)

	count, err := rc.Store.Photos().Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("photo count = %d after an unauthorized post, want 0", count)
	}
}

func TestPost_Validation(t *testing.T) {
	rc := signIn(t, newTestRC(t), "alice")
	svc := NewPhotoService(testLogger())

	tests := []struct {
		name  string
		input PostPhotoInput
		field string
	}{
		{"empty name", PostPhotoInput{Name: "   "}, "name"},
		{"long name", PostPhotoInput{Name: strings.Repeat("a", MaxPhotoNameLength+1)}, "name"},
		{"unknown category", PostPhotoInput{Name: "x", Category: "BLURRY"}, "category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Post(context.Background(), rc, tt.input)
			wantCode(t, err, apperror.ErrValidation)
			if appErr := apperror.From(err); appErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.field)
			}
		})
	}
}

func TestPost_ConcurrentPostsGetDistinctIDs(t *testing.T) {
	base := newTestRC(t)
	alice := signIn(t, base, "alice")
	bob := signIn(t, base, "bob")
	svc := NewPhotoService(testLogger())

	const perUser = 15
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]string{}
	)
	for _, caller := range []*auth.RequestContext{alice, bob} {
		for i := 0; i < perUser; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p, err := svc.Post(context.Background(), caller, PostPhotoInput{Name: "burst"})
				if err != nil {
					t.Errorf("Post() error = %v", err)
					return
				}
				mu.Lock()
				ids[p.ID] = p.UserID
				mu.Unlock()
			}()
		}
	}
	wg.Wait()

	if len(ids) != 2*perUser {
		t.Fatalf("got %d distinct ids, want %d", len(ids), 2*perUser)
	}
	owners := map[string]int{}
	for _, owner := range ids {
		owners[owner]++
	}
	if owners["alice"] != perUser || owners["bob"] != perUser {
		t.Errorf("owners = %v, want %d each", owners, perUser)
	}
}

// =========================================================================
// READ TESTS
// =========================================================================

func TestReads(t *testing.T) {
	ctx := context.Background()
	base := newTestRC(t)
	alice := signIn(t, base, "alice")
	signIn(t, base, "bob")
	photos := NewPhotoService(testLogger())
	users := NewUserService(testLogger())

	beach, err := photos.Post(ctx, alice, PostPhotoInput{Name: "beach"})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if err := base.Store.Tags().Insert(ctx, model.Tag{PhotoID: beach.ID, UserID: "bob"}); err != nil {
		t.Fatalf("tagging: %v", err)
	}

	if n, _ := photos.Total(ctx, base); n != 1 {
		t.Errorf("photos.Total() = %d, want 1", n)
	}
	if n, _ := users.Total(ctx, base); n != 2 {
		t.Errorf("users.Total() = %d, want 2", n)
	}

	owner, err := photos.PostedBy(ctx, base, beach)
	if err != nil || owner.GitHubLogin != "alice" {
		t.Errorf("PostedBy() = %+v, %v; want alice", owner, err)
	}
	tagged, err := photos.TaggedUsers(ctx, base, beach)
	if err != nil || len(tagged) != 1 || tagged[0].GitHubLogin != "bob" {
		t.Errorf("TaggedUsers() = %+v, %v; want [bob]", tagged, err)
	}

	bob, err := users.Get(ctx, base, "bob")
	if err != nil {
		t.Fatalf("users.Get(bob) error = %v", err)
	}
	in, err := users.InPhotos(ctx, base, bob)
	if err != nil || len(in) != 1 || in[0].ID != beach.ID {
		t.Errorf("InPhotos(bob) = %+v, %v; want [beach]", in, err)
	}
	posted, err := users.PostedPhotos(ctx, base, bob)
	if err != nil || len(posted) != 0 {
		t.Errorf("PostedPhotos(bob) = %+v, %v; want none", posted, err)
	}

	if me := users.Me(base); me != nil {
		t.Errorf("Me() for anonymous = %+v, want nil", me)
	}
	if me := users.Me(alice); me == nil || me.GitHubLogin != "alice" {
		t.Errorf("Me() = %+v, want alice", me)
	}

	_, err = photos.Get(ctx, base, "missing")
	wantCode(t, err, apperror.ErrNotFound)
	_, err = users.Get(ctx, base, "nobody")
	wantCode(t, err, apperror.ErrNotFound)
}

func TestAll_After(t *testing.T) {
	ctx := context.Background()
	rc := signIn(t, newTestRC(t), "alice")
	svc := NewPhotoService(testLogger())

	for _, p := range []struct {
		name string
		at   time.Time
	}{
		{"old", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"new", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)},
	} {
		at := p.at
		svc.now = func() time.Time { return at }
		if _, err := svc.Post(ctx, rc, PostPhotoInput{Name: p.name}); err != nil {
			t.Fatalf("Post(%s) error = %v", p.name, err)
		}
	}

	all, err := svc.All(ctx, rc, time.Time{})
	if err != nil || len(all) != 2 {
		t.Fatalf("All() = %d photos, %v; want 2", len(all), err)
	}
	recent, err := svc.All(ctx, rc, time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || len(recent) != 1 || recent[0].Name != "new" {
		t.Errorf("All(after mid-2020) = %+v, %v; want only \"new\"", recent, err)
	}
}

// A WebSocket connection builds its context once. Photos posted over it
// later must carry their own post time, not the handshake time.
func TestPost_CreatedIsMutationTimeOnLongLivedContext(t *testing.T) {
	ctx := context.Background()
	base := newTestRC(t)
	signIn(t, base, "alice")

	rc, err := auth.NewBuilder(base.Store, base.Bus, testLogger()).
		FromConnection(ctx, map[string]interface{}{"authToken": "token-alice"})
	if err != nil || !rc.Authenticated() {
		t.Fatalf("FromConnection() = %+v, %v; want alice", rc, err)
	}

	svc := NewPhotoService(testLogger())
	clock := rc.RequestedAt
	svc.now = func() time.Time {
		clock = clock.Add(time.Hour)
		return clock
	}

	first, err := svc.Post(ctx, rc, PostPhotoInput{Name: "first"})
	if err != nil {
		t.Fatalf("first Post() error = %v", err)
	}
	second, err := svc.Post(ctx, rc, PostPhotoInput{Name: "second"})
	if err != nil {
		t.Fatalf("second Post() error = %v", err)
	}

	if !first.Created.After(rc.RequestedAt) {
		t.Errorf("first Created = %v, want after the handshake at %v", first.Created, rc.RequestedAt)
	}
	if !second.Created.After(first.Created) {
		t.Errorf("second Created = %v, want after first %v", second.Created, first.Created)
	}
}
