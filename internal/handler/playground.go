// Package handler contains the HTTP and WebSocket handlers of the API.
//
// WHAT IS A HANDLER?
// In Go, an HTTP handler is anything that implements the http.Handler interface:
//
//	type Handler interface {
//	    ServeHTTP(ResponseWriter, *Request)
//	}
//
// Or more commonly, we use http.HandlerFunc, a function with the right signature
// that automatically satisfies the Handler interface. Chi's router accepts these directly.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (query params, body, headers)
// 2. Call the GraphQL executor or a service
// 3. Write the HTTP response (status code, headers, body)
//
// Handlers should NOT contain business logic. They are the "glue" between HTTP and the API.
package handler

import (
	"html/template"
	"log/slog"
	"net/http"
)

// playgroundPage is GraphiQL wired to both transports: fetches go to the
// HTTP endpoint and subscriptions to the graphql-ws socket on the same path.
const playgroundPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://unpkg.com/graphiql@1.4.7/graphiql.min.css">
  <style>html, body, #graphiql { height: 100%; margin: 0; }</style>
</head>
<body>
  <div id="graphiql">Loading…</div>
  <script src="https://unpkg.com/react@16/umd/react.production.min.js"></script>
  <script src="https://unpkg.com/react-dom@16/umd/react-dom.production.min.js"></script>
  <script src="https://unpkg.com/subscriptions-transport-ws@0.9.19/browser/client.js"></script>
  <script src="https://unpkg.com/graphiql-subscriptions-fetcher@0.0.2/browser/client.js"></script>
  <script src="https://unpkg.com/graphiql@1.4.7/graphiql.min.js"></script>
  <script>
    const endpoint = {{.Endpoint}};
    const wsEndpoint = (location.protocol === "https:" ? "wss://" : "ws://") + location.host + endpoint;
    const token = localStorage.getItem("token");
    const headers = {"Content-Type": "application/json"};
    if (token) { headers["Authorization"] = token; }

    const subscriptions = new window.SubscriptionsTransportWs.SubscriptionClient(wsEndpoint, {
      reconnect: true,
      connectionParams: token ? {Authorization: token} : {},
    });
    const httpFetcher = (params) =>
      fetch(endpoint, {method: "POST", headers, body: JSON.stringify(params)}).then((r) => r.json());

    ReactDOM.render(
      React.createElement(GraphiQL, {
        fetcher: window.GraphiQLSubscriptionsFetcher.graphQLFetcher(subscriptions, httpFetcher),
      }),
      document.getElementById("graphiql"),
    );
  </script>
</body>
</html>
`

// PlaygroundHandler serves the GraphiQL page.
//
// WHY A STRUCT?
// The template is parsed once at startup and reused for every request, and
// the logger is injected instead of reached for globally.
type PlaygroundHandler struct {
	templates *template.Template
	endpoint  string
	logger    *slog.Logger
}

// NewPlaygroundHandler parses the page template. endpoint is the path of
// the GraphQL route, e.g. "/graphql".
func NewPlaygroundHandler(endpoint string, logger *slog.Logger) (*PlaygroundHandler, error) {
	tmpl, err := template.New("playground").Parse(playgroundPage)
	if err != nil {
		return nil, err
	}
	return &PlaygroundHandler{templates: tmpl, endpoint: endpoint, logger: logger}, nil
}

// HandlePlayground serves GET /playground.
func (h *PlaygroundHandler) HandlePlayground(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"Title":    "PhotoShare API Playground",
		"Endpoint": h.endpoint,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.Execute(w, data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// HandleHome serves GET / with a pointer to the interesting routes.
func HandleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Welcome to the PhotoShare API\n\nGraphQL: /graphql\nPlayground: /playground\n"))
}
