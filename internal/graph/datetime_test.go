package graph

import (
	"context"
	"testing"
	"time"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photo-share/internal/model"
)

func TestDateTime_RoundTrip(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	instants := []time.Time{
		time.Date(2019, 4, 1, 12, 30, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 23, 59, 59, 123456789, time.UTC),
		time.Date(2021, 7, 14, 9, 0, 0, 500, berlin),
		time.Unix(0, 0),
	}
	for _, want := range instants {
		out, ok := DateTime.Serialize(want).(string)
		require.True(t, ok)

		fromValue, ok := DateTime.ParseValue(out).(time.Time)
		require.True(t, ok, "ParseValue(%q)", out)
		assert.True(t, want.Equal(fromValue), "value: want %v got %v", want, fromValue)

		fromLiteral, ok := DateTime.ParseLiteral(&ast.StringValue{Kind: "StringValue", Value: out}).(time.Time)
		require.True(t, ok, "ParseLiteral(%q)", out)
		assert.True(t, want.Equal(fromLiteral), "literal: want %v got %v", want, fromLiteral)
	}
}

func TestDateTime_Serialize(t *testing.T) {
	ts := time.Date(2021, 7, 14, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "2021-07-14T09:00:00Z", DateTime.Serialize(ts))
	assert.Equal(t, "2021-07-14T09:00:00Z", DateTime.Serialize(&ts))
	assert.Nil(t, DateTime.Serialize((*time.Time)(nil)))
	assert.Nil(t, DateTime.Serialize("yesterday"))
}

func TestDateTime_Parse(t *testing.T) {
	millis := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value interface{}
		want  interface{}
	}{
		{"rfc3339", "2020-01-01T00:00:00Z", millis},
		{"offset normalised to UTC", "2020-01-01T01:00:00+01:00", millis},
		{"unix millis int", int(millis.UnixMilli()), millis},
		{"unix millis float", float64(millis.UnixMilli()), millis},
		{"garbage", "not a date", nil},
		{"wrong type", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DateTime.ParseValue(tt.value))
		})
	}

	t.Run("int literal", func(t *testing.T) {
		got := DateTime.ParseLiteral(&ast.IntValue{Kind: "IntValue", Value: "1577836800000"})
		assert.Equal(t, millis, got)
	})
	t.Run("other literal", func(t *testing.T) {
		assert.Nil(t, DateTime.ParseLiteral(&ast.BooleanValue{Kind: "BooleanValue", Value: true}))
	})
}

// allPhotos(after:) takes a DateTime, so the scalar is exercised end to end.
func TestAllPhotos_After(t *testing.T) {
	h := newHarness(t, true)
	h.seedUser(t, "alice")
	for i, name := range []string{"old", "new"} {
		p := &model.Photo{
			Name:     name,
			Category: model.CategoryPortrait,
			UserID:   "alice",
			Created:  time.Date(2020, 1, 1+i*10, 0, 0, 0, 0, time.UTC),
		}
		require.NoError(t, h.store.Store.Photos().Insert(context.Background(), p))
	}

	tests := []struct {
		name  string
		query string
		vars  map[string]interface{}
	}{
		{"string literal", `{ allPhotos(after: "2020-01-05T00:00:00Z") { name created } }`, nil},
		{"millis literal", `{ allPhotos(after: 1578182400000) { name created } }`, nil},
		{"variable", `query Q($after: DateTime) { allPhotos(after: $after) { name created } }`,
			map[string]interface{}{"after": "2020-01-05T00:00:00Z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.do(t, nil, tt.query, tt.vars)
			require.Empty(t, res.Errors)
			assert.Equal(t, map[string]interface{}{
				"allPhotos": []interface{}{
					map[string]interface{}{"name": "new", "created": "2020-01-11T00:00:00Z"},
				},
			}, res.Data)
		})
	}
}
