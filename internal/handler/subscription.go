package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql/gqlerrors"

	"github.com/sakif/photo-share/internal/apperror"
	"github.com/sakif/photo-share/internal/auth"
	"github.com/sakif/photo-share/internal/graph"
)

// Message types of the graphql-ws subprotocol (subscriptions-transport-ws).
const (
	subprotocol = "graphql-ws"

	msgConnectionInit      = "connection_init"      // client → server
	msgConnectionAck       = "connection_ack"       // server → client
	msgConnectionError     = "connection_error"     // server → client
	msgConnectionKeepAlive = "ka"                   // server → client
	msgConnectionTerminate = "connection_terminate" // client → server
	msgStart               = "start"                // client → server
	msgData                = "data"                 // server → client
	msgError               = "error"                // server → client
	msgComplete            = "complete"             // server → client
	msgStop                = "stop"                 // client → server
)

const (
	DefaultKeepAlive = 15 * time.Second
	initTimeout      = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

type operationMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscriptionHandler serves GraphQL over WebSocket.
//
// CONNECTION LIFECYCLE:
//  1. Client upgrades with subprotocol "graphql-ws".
//  2. Client sends connection_init. Its payload carries the token, which
//     the Builder turns into the connection's RequestContext. The server
//     answers connection_ack (then ka every keepAlive) or connection_error.
//  3. Client sends start{id, payload: request}. Each result is sent back as
//     data{id}. When the operation ends the server sends complete{id}.
//  4. Client sends stop{id} to end one operation, or connection_terminate
//     (or just closes the socket) to end them all.
//
// Each operation owns a context derived from the connection's. Cancelling
// it is what releases the operation's bus subscription.
type SubscriptionHandler struct {
	exec      *graph.Executor
	builder   *auth.Builder
	logger    *slog.Logger
	keepAlive time.Duration
	upgrader  websocket.Upgrader
}

func NewSubscriptionHandler(exec *graph.Executor, builder *auth.Builder, keepAlive time.Duration, logger *slog.Logger) *SubscriptionHandler {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &SubscriptionHandler{
		exec:      exec,
		builder:   builder,
		logger:    logger,
		keepAlive: keepAlive,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{subprotocol},
			// Browsers send cookies on cross-origin WebSocket upgrades, but
			// this API authenticates with a token inside connection_init,
			// which another origin cannot read.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *SubscriptionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	if conn.Subprotocol() != subprotocol {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseProtocolError, "subprotocol graphql-ws required"),
			time.Now().Add(writeTimeout))
		conn.Close()
		return
	}

	// The request context ends when ServeHTTP returns, which is exactly the
	// lifetime of the socket.
	ctx, cancel := context.WithCancel(r.Context())
	c := &wsConnection{
		h:      h,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		ops:    make(map[string]context.CancelFunc),
		logger: h.logger.With(slog.String("remote", r.RemoteAddr)),
	}
	c.serve()
}

// wsConnection is the state of one socket.
type wsConnection struct {
	h      *SubscriptionHandler
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	// gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex

	rc *auth.RequestContext // set by connection_init; read only by the read loop

	mu  sync.Mutex
	ops map[string]context.CancelFunc
	wg  sync.WaitGroup
}

func (c *wsConnection) serve() {
	defer func() {
		c.cancel()
		c.wg.Wait()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(initTimeout))
	for {
		var msg operationMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read ended", slog.String("error", err.Error()))
			}
			return
		}

		switch msg.Type {
		case msgConnectionInit:
			if !c.init(msg) {
				return
			}
		case msgStart:
			c.start(msg)
		case msgStop:
			c.stop(msg.ID)
		case msgConnectionTerminate:
			return
		default:
			c.send(operationMessage{ID: msg.ID, Type: msgError, Payload: errorsPayload(
				apperror.ValidationFailed("type", "unknown message type "+msg.Type))})
		}
	}
}

func (c *wsConnection) init(msg operationMessage) bool {
	if c.rc != nil {
		c.send(operationMessage{Type: msgConnectionError, Payload: messagePayload("connection already initialised")})
		return true
	}

	var payload map[string]interface{}
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.send(operationMessage{Type: msgConnectionError, Payload: messagePayload("connection_init payload must be an object")})
			return false
		}
	}

	rc, err := c.h.builder.FromConnection(c.ctx, payload)
	if err != nil {
		c.logger.Error("building connection context", slog.String("error", err.Error()))
		c.send(operationMessage{Type: msgConnectionError, Payload: messagePayload(apperror.From(err).Message)})
		return false
	}
	c.rc = rc

	// Past the handshake the socket may idle for as long as the client likes.
	c.conn.SetReadDeadline(time.Time{})
	c.send(operationMessage{Type: msgConnectionAck})
	c.send(operationMessage{Type: msgConnectionKeepAlive})

	c.wg.Add(1)
	go c.keepAlive()
	return true
}

func (c *wsConnection) keepAlive() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.send(operationMessage{Type: msgConnectionKeepAlive}); err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (c *wsConnection) start(msg operationMessage) {
	if c.rc == nil {
		c.send(operationMessage{ID: msg.ID, Type: msgError, Payload: errorsPayload(
			apperror.Unauthorized("connection_init must come before start"))})
		return
	}
	if msg.ID == "" {
		c.send(operationMessage{Type: msgError, Payload: errorsPayload(
			apperror.ValidationFailed("id", "start requires an operation id"))})
		return
	}

	var req graph.Request
	if err := json.Unmarshal(msg.Payload, &req); err != nil || req.Query == "" {
		c.send(operationMessage{ID: msg.ID, Type: msgError, Payload: errorsPayload(
			apperror.ValidationFailed("payload", "start payload must be a GraphQL request"))})
		return
	}

	opCtx, opCancel := context.WithCancel(c.ctx)
	c.mu.Lock()
	if _, dup := c.ops[msg.ID]; dup {
		c.mu.Unlock()
		opCancel()
		c.send(operationMessage{ID: msg.ID, Type: msgError, Payload: errorsPayload(
			apperror.ValidationFailed("id", "operation "+msg.ID+" is already running"))})
		return
	}
	c.ops[msg.ID] = opCancel
	c.mu.Unlock()

	// The user and store come from connection_init; the timestamp is this
	// operation's own.
	opRC := *c.rc
	opRC.RequestedAt = time.Now()
	results, err := c.h.exec.Subscribe(auth.WithContext(opCtx, &opRC), req)
	if err != nil {
		c.finish(msg.ID)
		c.send(operationMessage{ID: msg.ID, Type: msgError, Payload: errorsPayload(err)})
		return
	}

	c.logger.Debug("operation started", slog.String("id", msg.ID))
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// Drain until graphql-go closes the channel; its producer blocks otherwise.
		for res := range results {
			c.send(operationMessage{ID: msg.ID, Type: msgData, Payload: mustJSON(newGraphQLResponse(res))})
		}
		c.finish(msg.ID)
		if c.ctx.Err() == nil {
			c.send(operationMessage{ID: msg.ID, Type: msgComplete})
		}
		c.logger.Debug("operation finished", slog.String("id", msg.ID))
	}()
}

func (c *wsConnection) stop(id string) {
	c.mu.Lock()
	cancel, ok := c.ops[id]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// finish forgets an operation and releases its context.
func (c *wsConnection) finish(id string) {
	c.mu.Lock()
	cancel, ok := c.ops[id]
	delete(c.ops, id)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

func (c *wsConnection) send(msg operationMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := c.conn.WriteJSON(msg)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug("websocket write failed", slog.String("error", err.Error()))
	}
	return err
}

func messagePayload(message string) json.RawMessage {
	return mustJSON(map[string]string{"message": message})
}

// errorsPayload renders err the way the error message expects: a list of
// GraphQL errors.
func errorsPayload(err error) json.RawMessage {
	appErr := apperror.From(err)
	return mustJSON([]gqlerrors.FormattedError{{
		Message:    appErr.Message,
		Extensions: appErr.Extensions(),
	}})
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{"message":"unencodable payload"}`)
	}
	return b
}
