package server_test

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photo-share/internal/config"
	"github.com/sakif/photo-share/internal/server"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Database.Driver = driver
	cfg.Database.Path = ":memory:"
	if driver == config.DriverBadger {
		cfg.Database.Path = "" // in-memory
	}
	cfg.Server.PhotoDir = t.TempDir()
	return cfg
}

func newServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	s, err := server.New(cfg, testLogger())
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return srv
}

func TestRoutes(t *testing.T) {
	for _, driver := range []string{config.DriverSQLite, config.DriverBadger} {
		t.Run(driver, func(t *testing.T) {
			cfg := testConfig(t, driver)
			require.NoError(t, os.WriteFile(filepath.Join(cfg.Server.PhotoDir, "abc.jpg"), []byte("jpeg bytes"), 0o600))
			srv := newServer(t, cfg)

			tests := []struct {
				name     string
				method   string
				path     string
				body     string
				wantCode int
				wantBody string
			}{
				{"welcome", http.MethodGet, "/", "", http.StatusOK, "Welcome to the PhotoShare API"},
				{"health", http.MethodGet, "/healthz", "", http.StatusOK, `"ok"`},
				{"playground", http.MethodGet, "/playground", "", http.StatusOK, "GraphiQL"},
				{"photo file", http.MethodGet, "/img/photos/abc.jpg", "", http.StatusOK, "jpeg bytes"},
				{"graphql post", http.MethodPost, "/graphql", `{"query":"{ totalUsers }"}`, http.StatusOK, `"totalUsers":0`},
				{"graphql get", http.MethodGet, "/graphql?query=%7B+totalPhotos+%7D", "", http.StatusOK, `"totalPhotos":0`},
				{"oauth disabled", http.MethodGet, "/auth/github/login", "", http.StatusNotFound, ""},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
					require.NoError(t, err)
					resp, err := http.DefaultClient.Do(req)
					require.NoError(t, err)
					defer resp.Body.Close()

					assert.Equal(t, tt.wantCode, resp.StatusCode)
					var sb strings.Builder
					_, err = sb.ReadFrom(resp.Body)
					require.NoError(t, err)
					assert.Contains(t, sb.String(), tt.wantBody)
				})
			}
		})
	}
}

func TestRoutes_OAuthEnabled(t *testing.T) {
	cfg := testConfig(t, config.DriverSQLite)
	cfg.GitHub.ClientID = "client-id"
	cfg.Auth.StateSecret = "0123456789abcdef-test-secret"
	srv := newServer(t, cfg)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(srv.URL + "/auth/github/login")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "github.com/login/oauth/authorize")
}

func TestRoutes_RateLimited(t *testing.T) {
	cfg := testConfig(t, config.DriverSQLite)
	cfg.RateLimit.RPS = 0.001
	cfg.RateLimit.Burst = 1
	srv := newServer(t, cfg)

	post := func() int {
		resp, err := http.Post(srv.URL+"/graphql", "application/json", strings.NewReader(`{"query":"{ totalUsers }"}`))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusTooManyRequests, post())
}

func TestStart_StopsOnCancel(t *testing.T) {
	// Grab a free port, then hand it to the server.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	cfg := testConfig(t, config.DriverSQLite)
	cfg.Server.Port = port
	s, err := server.New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
