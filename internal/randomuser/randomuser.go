// Package randomuser fetches synthetic identities from the randomuser.me
// API for the addFakeUsers mutation.
package randomuser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sakif/photo-share/internal/model"
)

// DefaultURL is the public randomuser.me endpoint.
const DefaultURL = "https://randomuser.me/api/"

// response is the slice of randomuser.me's payload we map into users.
type response struct {
	Results []struct {
		Login struct {
			Username string `json:"username"`
			SHA1     string `json:"sha1"`
		} `json:"login"`
		Name struct {
			First string `json:"first"`
			Last  string `json:"last"`
		} `json:"name"`
		Picture struct {
			Thumbnail string `json:"thumbnail"`
		} `json:"picture"`
	} `json:"results"`
}

// Client talks to a randomuser.me compatible API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client. An empty baseURL means DefaultURL; a nil
// httpClient means http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// Generate returns count fake users. The generated sha1 stands in for a
// GitHub token, so fakeUserAuth can hand it back as a usable credential.
func (c *Client) Generate(ctx context.Context, count int) ([]model.User, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("randomuser: parsing base url: %w", err)
	}
	q := u.Query()
	q.Set("results", strconv.Itoa(count))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("randomuser: building request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("randomuser: fetching users: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("randomuser: unexpected status %d", resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("randomuser: decoding response: %w", err)
	}

	users := make([]model.User, 0, len(body.Results))
	for _, r := range body.Results {
		users = append(users, model.User{
			GitHubLogin: r.Login.Username,
			Name:        r.Name.First + " " + r.Name.Last,
			Avatar:      r.Picture.Thumbnail,
			GitHubToken: r.Login.SHA1,
		})
	}
	return users, nil
}
