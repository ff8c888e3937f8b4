// Package graph is the GraphQL surface of the API: the schema, the
// resolvers behind it and the Executor that runs documents through the
// query gate before graphql-go executes them.
//
// Resolvers are thin. They read the *auth.RequestContext attached to the
// operation's context, call a service and return its result. All rules
// live in the service package.
package graph

import (
	"github.com/graphql-go/graphql"

	"github.com/sakif/photo-share/internal/model"
	"github.com/sakif/photo-share/internal/service"
)

// SchemaConfig wires the services into the schema.
type SchemaConfig struct {
	Auth   *service.AuthService
	Photos *service.PhotoService
	Users  *service.UserService
	// FakeUserAuth registers the fakeUserAuth backdoor mutation. It hands
	// out stored tokens for any login and must be off in production.
	FakeUserAuth bool
}

// NewSchema builds the executable schema.
func NewSchema(cfg SchemaConfig) (*graphql.Schema, error) {
	r := &resolvers{auth: cfg.Auth, photos: cfg.Photos, users: cfg.Users}

	categoryValues := graphql.EnumValueConfigMap{}
	for _, c := range model.Categories {
		categoryValues[string(c)] = &graphql.EnumValueConfig{Value: c}
	}
	photoCategory := graphql.NewEnum(graphql.EnumConfig{
		Name:   "PhotoCategory",
		Values: categoryValues,
	})

	// User and Photo refer to each other, so both use thunks.
	var userType, photoType *graphql.Object

	userType = graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"githubLogin":  &graphql.Field{Type: graphql.NewNonNull(graphql.ID), Resolve: r.userLogin},
				"name":         &graphql.Field{Type: graphql.String, Resolve: r.userName},
				"avatar":       &graphql.Field{Type: graphql.String, Resolve: r.userAvatar},
				"postedPhotos": &graphql.Field{Type: nonNullList(photoType), Resolve: r.userPostedPhotos},
				"inPhotos":     &graphql.Field{Type: nonNullList(photoType), Resolve: r.userInPhotos},
			}
		}),
	})

	photoType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Photo",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":          &graphql.Field{Type: graphql.NewNonNull(graphql.ID), Resolve: r.photoID},
				"name":        &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: r.photoName},
				"url":         &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: r.photoURL},
				"description": &graphql.Field{Type: graphql.String, Resolve: r.photoDescription},
				"category":    &graphql.Field{Type: graphql.NewNonNull(photoCategory), Resolve: r.photoCategory},
				"postedBy":    &graphql.Field{Type: graphql.NewNonNull(userType), Resolve: r.photoPostedBy},
				"taggedUsers": &graphql.Field{Type: nonNullList(userType), Resolve: r.photoTaggedUsers},
				"created":     &graphql.Field{Type: graphql.NewNonNull(DateTime), Resolve: r.photoCreated},
			}
		}),
	})

	authPayload := graphql.NewObject(graphql.ObjectConfig{
		Name: "AuthPayload",
		Fields: graphql.Fields{
			"token": &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: r.payloadToken},
			"user":  &graphql.Field{Type: graphql.NewNonNull(userType), Resolve: r.payloadUser},
		},
	})

	postPhotoInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "PostPhotoInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"name":        &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"category":    &graphql.InputObjectFieldConfig{Type: photoCategory, DefaultValue: model.CategoryPortrait},
			"description": &graphql.InputObjectFieldConfig{Type: graphql.String},
		},
	})

	// Root fields stay nullable so one failing field never blanks out its
	// siblings.
	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"me":          &graphql.Field{Type: userType, Resolve: r.me},
			"totalPhotos": &graphql.Field{Type: graphql.Int, Resolve: r.totalPhotos},
			"allPhotos": &graphql.Field{
				Type:    graphql.NewList(photoType),
				Args:    graphql.FieldConfigArgument{"after": &graphql.ArgumentConfig{Type: DateTime}},
				Resolve: r.allPhotos,
			},
			"totalUsers": &graphql.Field{Type: graphql.Int, Resolve: r.totalUsers},
			"allUsers":   &graphql.Field{Type: graphql.NewList(userType), Resolve: r.allUsers},
			"user": &graphql.Field{
				Type:    userType,
				Args:    graphql.FieldConfigArgument{"githubLogin": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)}},
				Resolve: r.user,
			},
			"photo": &graphql.Field{
				Type:    photoType,
				Args:    graphql.FieldConfigArgument{"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)}},
				Resolve: r.photo,
			},
		},
	})

	mutationFields := graphql.Fields{
		"postPhoto": &graphql.Field{
			Type:    photoType,
			Args:    graphql.FieldConfigArgument{"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(postPhotoInput)}},
			Resolve: r.postPhoto,
		},
		"githubAuth": &graphql.Field{
			Type:    authPayload,
			Args:    graphql.FieldConfigArgument{"code": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}},
			Resolve: r.githubAuth,
		},
		"addFakeUsers": &graphql.Field{
			Type:    graphql.NewList(userType),
			Args:    graphql.FieldConfigArgument{"count": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)}},
			Resolve: r.addFakeUsers,
		},
	}
	if cfg.FakeUserAuth {
		mutationFields["fakeUserAuth"] = &graphql.Field{
			Type:    authPayload,
			Args:    graphql.FieldConfigArgument{"githubLogin": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)}},
			Resolve: r.fakeUserAuth,
		}
	}
	mutation := graphql.NewObject(graphql.ObjectConfig{Name: "Mutation", Fields: mutationFields})

	subscription := graphql.NewObject(graphql.ObjectConfig{
		Name: "Subscription",
		Fields: graphql.Fields{
			"newPhoto": &graphql.Field{Type: photoType, Subscribe: r.subscribeNewPhoto, Resolve: r.event},
			"newUser":  &graphql.Field{Type: userType, Subscribe: r.subscribeNewUser, Resolve: r.event},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query:        query,
		Mutation:     mutation,
		Subscription: subscription,
	})
	if err != nil {
		return nil, err
	}
	return &schema, nil
}

func nonNullList(of graphql.Type) *graphql.NonNull {
	return graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(of)))
}
