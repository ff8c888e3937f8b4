package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photo-share/internal/auth"
	"github.com/sakif/photo-share/internal/handler"
	"github.com/sakif/photo-share/internal/model"
	"github.com/sakif/photo-share/internal/pubsub"
	"github.com/sakif/photo-share/internal/repository"
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// serveGraphQL runs both transports on /graphql, the way the server does.
func serveGraphQL(t *testing.T, s *testStack, builder *auth.Builder, keepAlive time.Duration) *httptest.Server {
	t.Helper()
	subs := handler.NewSubscriptionHandler(s.exec, builder, keepAlive, s.logger)
	mux := http.NewServeMux()
	mux.Handle("/graphql", handler.Upgrade(subs, s.graphqlRoute()))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, subprotocols ...string) *websocket.Conn {
	t.Helper()
	if subprotocols == nil {
		subprotocols = []string{"graphql-ws"}
	}
	dialer := websocket.Dialer{Subprotocols: subprotocols}
	conn, _, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/graphql", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg wsMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func payload(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

// next reads the next message that is not a keep-alive.
func next(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type != "ka" {
			return msg
		}
	}
}

func initConn(t *testing.T, conn *websocket.Conn, params map[string]string) {
	t.Helper()
	send(t, conn, wsMessage{Type: "connection_init", Payload: payload(t, params)})
	assert.Equal(t, "connection_ack", next(t, conn).Type)
}

func waitSubscribers(t *testing.T, bus *pubsub.Bus, topic string, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return bus.Subscribers(topic) == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscription_PostThenReceive(t *testing.T) {
	s := newStack(t)
	token := s.seedUser(t, "alice")
	srv := serveGraphQL(t, s, s.builder, 0)

	conn := dial(t, srv)
	initConn(t, conn, nil)
	send(t, conn, wsMessage{ID: "1", Type: "start", Payload: payload(t, map[string]string{
		"query": `subscription { newPhoto { name postedBy { githubLogin } } }`,
	})})
	waitSubscribers(t, s.bus, pubsub.TopicPhotoAdded, 1)

	// The mutation arrives over plain HTTP on the same path.
	body := strings.NewReader(`{"query":"mutation { postPhoto(input: {name: \"live\"}) { id } }"}`)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/graphql", body)
	require.NoError(t, err)
	req.Header.Set("Authorization", token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	msg := next(t, conn)
	assert.Equal(t, "data", msg.Type)
	assert.Equal(t, "1", msg.ID)
	assert.JSONEq(t, `{"data":{"newPhoto":{"name":"live","postedBy":{"githubLogin":"alice"}}}}`, string(msg.Payload))

	send(t, conn, wsMessage{ID: "1", Type: "stop"})
	msg = next(t, conn)
	assert.Equal(t, "complete", msg.Type)
	assert.Equal(t, "1", msg.ID)
	waitSubscribers(t, s.bus, pubsub.TopicPhotoAdded, 0)
}

func TestSubscription_ClosingSocketReleasesSubscriptions(t *testing.T) {
	s := newStack(t)
	srv := serveGraphQL(t, s, s.builder, 0)

	conn := dial(t, srv)
	initConn(t, conn, nil)
	for _, id := range []string{"a", "b"} {
		send(t, conn, wsMessage{ID: id, Type: "start", Payload: payload(t, map[string]string{
			"query": `subscription { newUser { githubLogin } }`,
		})})
	}
	waitSubscribers(t, s.bus, pubsub.TopicUserAdded, 2)

	conn.Close()
	waitSubscribers(t, s.bus, pubsub.TopicUserAdded, 0)
}

func TestSubscription_ConnectionTerminate(t *testing.T) {
	s := newStack(t)
	srv := serveGraphQL(t, s, s.builder, 0)

	conn := dial(t, srv)
	initConn(t, conn, nil)
	send(t, conn, wsMessage{ID: "1", Type: "start", Payload: payload(t, map[string]string{
		"query": `subscription { newPhoto { id } }`,
	})})
	waitSubscribers(t, s.bus, pubsub.TopicPhotoAdded, 1)

	send(t, conn, wsMessage{Type: "connection_terminate"})
	waitSubscribers(t, s.bus, pubsub.TopicPhotoAdded, 0)
}

func TestSubscription_QueryCompletes(t *testing.T) {
	s := newStack(t)
	srv := serveGraphQL(t, s, s.builder, 0)

	conn := dial(t, srv)
	initConn(t, conn, nil)
	send(t, conn, wsMessage{ID: "q", Type: "start", Payload: payload(t, map[string]string{"query": `{ totalPhotos }`})})

	msg := next(t, conn)
	assert.Equal(t, "data", msg.Type)
	assert.JSONEq(t, `{"data":{"totalPhotos":0}}`, string(msg.Payload))
	assert.Equal(t, "complete", next(t, conn).Type)
}

func TestSubscription_Errors(t *testing.T) {
	s := newStack(t)
	srv := serveGraphQL(t, s, s.builder, 0)

	t.Run("start before init", func(t *testing.T) {
		conn := dial(t, srv)
		send(t, conn, wsMessage{ID: "1", Type: "start", Payload: payload(t, map[string]string{"query": `{ totalUsers }`})})
		msg := next(t, conn)
		assert.Equal(t, "error", msg.Type)
		assert.Equal(t, "1", msg.ID)
		assert.Contains(t, string(msg.Payload), "UNAUTHORIZED")
	})

	t.Run("gate rejection", func(t *testing.T) {
		conn := dial(t, srv)
		initConn(t, conn, nil)
		send(t, conn, wsMessage{ID: "deep", Type: "start", Payload: payload(t, map[string]string{
			"query": `subscription { newPhoto { postedBy { postedPhotos { postedBy { postedPhotos { postedBy { name } } } } } } }`,
		})})
		msg := next(t, conn)
		assert.Equal(t, "error", msg.Type)
		assert.Contains(t, string(msg.Payload), "QUERY_TOO_DEEP")
		assert.Zero(t, s.bus.Subscribers(pubsub.TopicPhotoAdded))
	})

	t.Run("duplicate operation id", func(t *testing.T) {
		conn := dial(t, srv)
		initConn(t, conn, nil)
		start := wsMessage{ID: "dup", Type: "start", Payload: payload(t, map[string]string{"query": `subscription { newUser { name } }`})}
		send(t, conn, start)
		send(t, conn, start)
		msg := next(t, conn)
		assert.Equal(t, "error", msg.Type)
		assert.Equal(t, "dup", msg.ID)
	})

	t.Run("unknown message type", func(t *testing.T) {
		conn := dial(t, srv)
		initConn(t, conn, nil)
		send(t, conn, wsMessage{ID: "x", Type: "subscribe"})
		assert.Equal(t, "error", next(t, conn).Type)
	})
}

// brokenUsers fails every lookup as if the database were down.
type brokenUsers struct{ repository.UserRepository }

func (brokenUsers) GetByToken(context.Context, string) (*model.User, error) {
	return nil, errors.New("disk I/O error")
}

func (brokenUsers) Count(context.Context) (int, error) {
	return 0, errors.New("disk I/O error")
}

type brokenStore struct{ repository.Store }

func (brokenStore) Users() repository.UserRepository { return brokenUsers{} }

func TestSubscription_ConnectionError(t *testing.T) {
	s := newStack(t)
	broken := auth.NewBuilder(brokenStore{}, s.bus, s.logger)
	srv := serveGraphQL(t, s, broken, 0)

	conn := dial(t, srv)
	send(t, conn, wsMessage{Type: "connection_init", Payload: payload(t, map[string]string{"authToken": "whatever"})})

	msg := next(t, conn)
	assert.Equal(t, "connection_error", msg.Type)
	assert.Contains(t, string(msg.Payload), "unavailable")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server should close the socket")
}

func TestSubscription_KeepAlive(t *testing.T) {
	s := newStack(t)
	srv := serveGraphQL(t, s, s.builder, 20*time.Millisecond)

	conn := dial(t, srv)
	send(t, conn, wsMessage{Type: "connection_init"})

	var types []string
	for len(types) < 3 {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		types = append(types, msg.Type)
	}
	assert.Equal(t, []string{"connection_ack", "ka", "ka"}, types)
}

func TestSubscription_RequiresSubprotocol(t *testing.T) {
	s := newStack(t)
	srv := serveGraphQL(t, s, s.builder, 0)

	conn := dial(t, srv, "some-other-protocol")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseProtocolError), "got %v", err)
}

func TestSubscription_MutationsOverSocketAreStampedWhenTheyRun(t *testing.T) {
	s := newStack(t)
	token := s.seedUser(t, "alice")
	srv := serveGraphQL(t, s, s.builder, 0)

	conn := dial(t, srv)
	initConn(t, conn, map[string]string{"authToken": token})
	acked := time.Now()

	post := func(id string) time.Time {
		t.Helper()
		time.Sleep(20 * time.Millisecond)
		send(t, conn, wsMessage{ID: id, Type: "start", Payload: payload(t, map[string]string{
			"query": `mutation { postPhoto(input: {name: "` + id + `"}) { created } }`,
		})})
		msg := next(t, conn)
		require.Equal(t, "data", msg.Type, string(msg.Payload))
		var res struct {
			Data struct {
				PostPhoto struct {
					Created time.Time `json:"created"`
				} `json:"postPhoto"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg.Payload, &res))
		assert.Equal(t, "complete", next(t, conn).Type)
		return res.Data.PostPhoto.Created
	}

	first := post("p1")
	second := post("p2")
	assert.True(t, first.After(acked), "first created %v, handshake acked at %v", first, acked)
	assert.True(t, second.After(first), "second created %v, first %v", second, first)
}
