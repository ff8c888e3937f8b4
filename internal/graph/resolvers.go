package graph

import (
	"context"
	"errors"
	"time"

	"github.com/graphql-go/graphql"

	"github.com/sakif/photo-share/internal/apperror"
	"github.com/sakif/photo-share/internal/auth"
	"github.com/sakif/photo-share/internal/model"
	"github.com/sakif/photo-share/internal/pubsub"
	"github.com/sakif/photo-share/internal/service"
)

type resolvers struct {
	auth   *service.AuthService
	photos *service.PhotoService
	users  *service.UserService
}

var errNoRequestContext = errors.New("graph: no request context attached")

func requestContext(ctx context.Context) (*auth.RequestContext, error) {
	rc, ok := auth.FromContext(ctx)
	if !ok {
		return nil, apperror.UpstreamUnavailable("request context", errNoRequestContext)
	}
	return rc, nil
}

// fail hands graphql-go the *AppError itself. Its Extensions method is only
// found on the error the resolver returns, not on anything it wraps.
func fail(err error) (interface{}, error) {
	return nil, apperror.From(err)
}

func asUser(src interface{}) *model.User {
	switch v := src.(type) {
	case *model.User:
		return v
	case model.User:
		return &v
	}
	return nil
}

func asPhoto(src interface{}) *model.Photo {
	switch v := src.(type) {
	case *model.Photo:
		return v
	case model.Photo:
		return &v
	}
	return nil
}

// =========================================================================
// Query
// =========================================================================

func (r *resolvers) me(p graphql.ResolveParams) (interface{}, error) {
	rc, err := requestContext(p.Context)
	if err != nil {
		return fail(err)
	}
	if me := r.users.Me(rc); me != nil {
		return me, nil
	}
	return nil, nil
}

func (r *resolvers) totalPhotos(p graphql.ResolveParams) (interface{}, error) {
	rc, err := requestContext(p.Context)
	if err != nil {
		return fail(err)
	}
	n, err := r.photos.Total(p.Context, rc)
	if err != nil {
		return fail(err)
	}
	return n, nil
}

func (r *resolvers) allPhotos(p graphql.ResolveParams) (interface{}, error) {
	rc, err := requestContext(p.Context)
	if err != nil {
		return fail(err)
	}
	after, _ := p.Args["after"].(time.Time)
	photos, err := r.photos.All(p.Context, rc, after)
	if err != nil {
		return fail(err)
	}
	return photos, nil
}

func (r *resolvers) totalUsers(p graphql.ResolveParams) (interface{}, error) {
	rc, err := requestContext(p.Context)
	if err != nil {
		return fail(err)
	}
	n, err := r.users.Total(p.Context, rc)
	if err != nil {
		return fail(err)
	}
	return n, nil
}

func (r *resolvers) allUsers(p graphql.ResolveParams) (interface{}, error) {
	rc, err := requestContext(p.Context)
	if err != nil {
		return fail(err)
	}
	users, err := r.users.All(p.Context, rc)
	if err != nil {
		return fail(err)
	}
	return users, nil
}

func (r *resolvers) user(p graphql.ResolveParams) (interface{}, error) {
	rc, err := requestContext(p.Context)
	if err != nil {
		return fail(err)
	}
	login, _ := p.Args["githubLogin"].(string)
	user, err := r.users.Get(p.Context, rc, login)
	if err != nil {
		return fail(err)
	}
	return user, nil
}

func (r *resolvers) photo(p graphql.ResolveParams) (interface{}, error) {
	rc, err := requestContext(p.Context)
	if err != nil {
		return fail(err)
	}
	id, _ := p.Args["id"].(string)
	photo, err := r.photos.Get(p.Context, rc, id)
	if err != nil {
		return fail(err)
	}
	return photo, nil
}

// =========================================================================
// Mutation
// =========================================================================

func (r *resolvers) postPhoto(p graphql.ResolveParams) (interface{}, error) {
	rc, err := requestContext(p.Context)
	if err != nil {
		return fail(err)
	}

	in, _ := p.Args["input"].(map[string]interface{})
	input := service.PostPhotoInput{}
	input.Name, _ = in["name"].(string)
	input.Description, _ = in["description"].(string)
	input.Category, _ = in["category"].(model.PhotoCategory)

	photo, err := r.photos.Post(p.Context, rc, input)
	if err != nil {
		return fail(err)
	}
	return photo, nil
}

func (r *resolvers) githubAuth(p graphql.ResolveParams) (interface{}, error) {
	rc, err := requestContext(p.Context)
	if err != nil {
		return fail(err)
	}
	code, _ := p.Args["code"].(string)
	payload, err := r.auth.GitHubAuth(p.Context, rc, code)
	if err != nil {
		return fail(err)
	}
	return payload, nil
}

func (r *resolvers) addFakeUsers(p graphql.ResolveParams) (interface{}, error) {
	rc, err := requestContext(p.Context)
	if err != nil {
		return fail(err)
	}
	count, _ := p.Args["count"].(int)
	users, err := r.auth.AddFakeUsers(p.Context, rc, count)
	if err != nil {
		return fail(err)
	}
	return users, nil
}

func (r *resolvers) fakeUserAuth(p graphql.ResolveParams) (interface{}, error) {
	rc, err := requestContext(p.Context)
	if err != nil {
		return fail(err)
	}
	login, _ := p.Args["githubLogin"].(string)
	payload, err := r.auth.FakeUserAuth(p.Context, rc, login)
	if err != nil {
		return fail(err)
	}
	return payload, nil
}

// =========================================================================
// Subscription
// =========================================================================
//
// graphql-go calls Subscribe once per operation and expects a
// chan interface{}. Each value received is executed against the selection
// set with the value as the root, so the field's Resolve just returns it.

func (r *resolvers) subscribeNewPhoto(p graphql.ResolveParams) (interface{}, error) {
	return r.subscribe(p, pubsub.TopicPhotoAdded)
}

func (r *resolvers) subscribeNewUser(p graphql.ResolveParams) (interface{}, error) {
	return r.subscribe(p, pubsub.TopicUserAdded)
}

// subscribe holds one bus subscription for as long as the operation's
// context lives and releases it as soon as that context ends.
func (r *resolvers) subscribe(p graphql.ResolveParams, topic string) (interface{}, error) {
	rc, err := requestContext(p.Context)
	if err != nil {
		return fail(err)
	}

	sub := rc.Bus.Subscribe(topic)
	out := make(chan interface{})
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-p.Context.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-p.Context.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *resolvers) event(p graphql.ResolveParams) (interface{}, error) {
	return p.Source, nil
}

// =========================================================================
// Type fields
// =========================================================================

func (r *resolvers) userLogin(p graphql.ResolveParams) (interface{}, error) {
	if u := asUser(p.Source); u != nil {
		return u.GitHubLogin, nil
	}
	return nil, nil
}

func (r *resolvers) userName(p graphql.ResolveParams) (interface{}, error) {
	if u := asUser(p.Source); u != nil {
		return u.Name, nil
	}
	return nil, nil
}

func (r *resolvers) userAvatar(p graphql.ResolveParams) (interface{}, error) {
	if u := asUser(p.Source); u != nil {
		return u.Avatar, nil
	}
	return nil, nil
}

func (r *resolvers) userPostedPhotos(p graphql.ResolveParams) (interface{}, error) {
	rc, err := requestContext(p.Context)
	if err != nil {
		return fail(err)
	}
	photos, err := r.users.PostedPhotos(p.Context, rc, asUser(p.Source))
	if err != nil {
		return fail(err)
	}
	return photos, nil
}

func (r *resolvers) userInPhotos(p graphql.ResolveParams) (interface{}, error) {
	rc, err := requestContext(p.Context)
	if err != nil {
		return fail(err)
	}
	photos, err := r.users.InPhotos(p.Context, rc, asUser(p.Source))
	if err != nil {
		return fail(err)
	}
	return photos, nil
}

func (r *resolvers) photoID(p graphql.ResolveParams) (interface{}, error) {
	if ph := asPhoto(p.Source); ph != nil {
		return ph.ID, nil
	}
	return nil, nil
}

func (r *resolvers) photoName(p graphql.ResolveParams) (interface{}, error) {
	if ph := asPhoto(p.Source); ph != nil {
		return ph.Name, nil
	}
	return nil, nil
}

func (r *resolvers) photoURL(p graphql.ResolveParams) (interface{}, error) {
	if ph := asPhoto(p.Source); ph != nil {
		return ph.URL(), nil
	}
	return nil, nil
}

func (r *resolvers) photoDescription(p graphql.ResolveParams) (interface{}, error) {
	if ph := asPhoto(p.Source); ph != nil && ph.Description != "" {
		return ph.Description, nil
	}
	return nil, nil
}

func (r *resolvers) photoCategory(p graphql.ResolveParams) (interface{}, error) {
	if ph := asPhoto(p.Source); ph != nil {
		return ph.Category, nil
	}
	return nil, nil
}

func (r *resolvers) photoCreated(p graphql.ResolveParams) (interface{}, error) {
	if ph := asPhoto(p.Source); ph != nil {
		return ph.Created, nil
	}
	return nil, nil
}

func (r *resolvers) photoPostedBy(p graphql.ResolveParams) (interface{}, error) {
	rc, err := requestContext(p.Context)
	if err != nil {
		return fail(err)
	}
	user, err := r.photos.PostedBy(p.Context, rc, asPhoto(p.Source))
	if err != nil {
		return fail(err)
	}
	return user, nil
}

func (r *resolvers) photoTaggedUsers(p graphql.ResolveParams) (interface{}, error) {
	rc, err := requestContext(p.Context)
	if err != nil {
		return fail(err)
	}
	users, err := r.photos.TaggedUsers(p.Context, rc, asPhoto(p.Source))
	if err != nil {
		return fail(err)
	}
	return users, nil
}

// =========================================================================
// AuthPayload
// =========================================================================

func (r *resolvers) payloadToken(p graphql.ResolveParams) (interface{}, error) {
	if ap, ok := p.Source.(*model.AuthPayload); ok {
		return ap.Token, nil
	}
	return nil, nil
}

func (r *resolvers) payloadUser(p graphql.ResolveParams) (interface{}, error) {
	if ap, ok := p.Source.(*model.AuthPayload); ok {
		return ap.User, nil
	}
	return nil, nil
}
