package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sakif/photo-share/internal/apperror"
	"github.com/sakif/photo-share/internal/graph"
)

// maxBodyBytes caps a POSTed GraphQL request.
const maxBodyBytes = 1 << 20

// GraphQLHandler serves queries and mutations over plain HTTP.
//
// HTTP:
//
//	POST /graphql  {"query": "...", "variables": {...}, "operationName": "..."}
//	GET  /graphql?query=...&variables=...&operationName=...   (queries only)
//
// STATUS CODES:
// 200 whenever the document executed, even if some fields failed. Those
// failures travel inside "errors" next to the fields that did resolve.
// 400 when the document never ran: malformed body, query gate rejection or
// a document graphql-go could not parse or validate.
type GraphQLHandler struct {
	exec   *graph.Executor
	logger *slog.Logger
}

func NewGraphQLHandler(exec *graph.Executor, logger *slog.Logger) *GraphQLHandler {
	return &GraphQLHandler{exec: exec, logger: logger}
}

func (h *GraphQLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.HandlePost(w, r)
	case http.MethodGet:
		h.HandleGet(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeGraphQLError(w, http.StatusMethodNotAllowed,
			apperror.ValidationFailed("method", "GraphQL is served over GET and POST"))
	}
}

// HandlePost runs a JSON-encoded request.
func (h *GraphQLHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req graph.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGraphQLError(w, http.StatusBadRequest,
			apperror.ValidationFailed("body", "request body must be a JSON GraphQL request"))
		return
	}
	h.execute(w, r, req)
}

// HandleGet runs a query carried in the URL.
//
// WHY QUERIES ONLY?
// GET requests are cached, prefetched and replayed by browsers and proxies.
// A mutation behind GET could run without the user meaning it to.
func (h *GraphQLHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := graph.Request{
		Query:         q.Get("query"),
		OperationName: q.Get("operationName"),
	}
	if vars := q.Get("variables"); vars != "" {
		if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
			writeGraphQLError(w, http.StatusBadRequest,
				apperror.ValidationFailed("variables", "variables must be a JSON object"))
			return
		}
	}

	if op := graph.OperationType(req); op != "" && op != "query" {
		w.Header().Set("Allow", "POST")
		writeGraphQLError(w, http.StatusMethodNotAllowed,
			apperror.ValidationFailed("query", "only queries may be sent with GET"))
		return
	}
	h.execute(w, r, req)
}

func (h *GraphQLHandler) execute(w http.ResponseWriter, r *http.Request, req graph.Request) {
	if req.Query == "" {
		writeGraphQLError(w, http.StatusBadRequest, apperror.ValidationFailed("query", "query is required"))
		return
	}

	res, err := h.exec.Execute(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, newGraphQLResponse(res))
		return
	}

	status := http.StatusOK
	if res.Data == nil && len(res.Errors) > 0 {
		// Parse or validation failure: nothing was executed.
		status = http.StatusBadRequest
	}
	writeJSON(w, status, newGraphQLResponse(res))
}

// Upgrade routes WebSocket upgrade requests to ws and everything else to
// plain. Both transports share the /graphql path.
func Upgrade(ws, plain http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			ws.ServeHTTP(w, r)
			return
		}
		plain.ServeHTTP(w, r)
	})
}
