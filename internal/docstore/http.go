package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBody       = 4 << 10
)

// HTTPStore keeps records in a Firebase-style realtime database, where every
// path suffixed with ".json" is a JSON document that can be read with GET and
// replaced with PUT.
type HTTPStore struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewHTTPStore creates a store rooted at baseURL. authToken, when set, is
// sent as the "auth" query parameter. A zero timeout selects 10s.
func NewHTTPStore(baseURL, authToken string, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetUser fetches users/<username>.json. A null document means the user does not exist.
func (s *HTTPStore) GetUser(ctx context.Context, username string) (User, error) {
	resp, err := s.do(ctx, http.MethodGet, s.docURL("users", username), nil)
	if err != nil {
		return User{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return User{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return User{}, statusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return User{}, fmt.Errorf("reading user %q: %w", username, err)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return User{}, ErrNotFound
	}

	var u User
	if err := json.Unmarshal(trimmed, &u); err != nil {
		return User{}, fmt.Errorf("decoding user %q: %w", username, err)
	}
	u.Username = username
	u.History = normalizeHistory(u.History)
	return u, nil
}

// PutUser replaces users/<username>.json.
func (s *HTTPStore) PutUser(ctx context.Context, u User) error {
	if u.History == nil {
		u.History = []HistoryEntry{}
	}
	return s.put(ctx, s.docURL("users", u.Username), u)
}

// PutHistory replaces users/<username>/history.json.
func (s *HTTPStore) PutHistory(ctx context.Context, username string, history []HistoryEntry) error {
	if history == nil {
		history = []HistoryEntry{}
	}
	return s.put(ctx, s.docURL("users", username, "history"), history)
}

// Close is a no-op; the store holds no resources beyond pooled connections.
func (s *HTTPStore) Close() error {
	return nil
}

func (s *HTTPStore) put(ctx context.Context, u string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	resp, err := s.do(ctx, http.MethodPut, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *HTTPStore) do(ctx context.Context, method, u string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, fmt.Errorf("%s %s: %w", method, redact(u), err)
	}
	return resp, nil
}

// docURL builds <base>/<seg>/.../<last>.json with each segment path-escaped.
func (s *HTTPStore) docURL(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	u := s.baseURL + "/" + strings.Join(escaped, "/") + ".json"
	if s.authToken != "" {
		u += "?auth=" + url.QueryEscape(s.authToken)
	}
	return u
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("document store returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// redact drops the query string so auth tokens stay out of error messages.
func redact(u string) string {
	base, _, _ := strings.Cut(u, "?")
	return base
}
