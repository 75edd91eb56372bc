// Package backend is the HTTP client for the Mattermost REST API (v4) that stores every team,
// channel, user and post the gateway serves.
//
// A Connector owns the connection pool, the outbound rate limiter and the in-flight bound.
// Login returns a Client bound to one user's session token; all API calls hang off Client.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/memohai/chatgate/internal/apperr"
	"github.com/memohai/chatgate/internal/version"
)

const (
	apiPrefix      = "/api/v4"
	defaultTimeout = 10 * time.Second
	// listPageSize is the largest per_page the backend accepts.
	listPageSize = 200
)

// Options configures a Connector.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	RateLimit   float64
	Burst       int
	MaxInFlight int64
	HTTPClient  *http.Client
}

// Connector creates backend sessions and carries every outbound request.
type Connector struct {
	baseURL  string
	timeout  time.Duration
	http     *http.Client
	limiter  *rate.Limiter
	inFlight *semaphore.Weighted
	logger   *slog.Logger
}

// NewConnector validates opts and builds a Connector.
func NewConnector(log *slog.Logger, opts Options) (*Connector, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("backend: invalid base url: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	maxInFlight := opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Connector{
		baseURL:  base,
		timeout:  opts.Timeout,
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, burst),
		inFlight: semaphore.NewWeighted(maxInFlight),
		logger:   log.With(slog.String("client", "backend")),
	}, nil
}

// Login opens a session for loginID (username or email) and returns a Client bound to it.
func (c *Connector) Login(ctx context.Context, loginID, password string) (*Client, error) {
	var user User
	header, err := c.do(ctx, "login", "", http.MethodPost, "/users/login", nil,
		loginRequest{LoginID: loginID, Password: password}, &user)
	if err != nil {
		return nil, err
	}
	token := header.Get("Token")
	if token == "" {
		return nil, apperr.External("login", errors.New("response carried no session token"))
	}
	return c.Session(token, user.ID, user.Username), nil
}

// Logout revokes the session token. The client must not be used afterwards.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.conn.do(ctx, "logout", c.token, http.MethodPost, "/users/logout", nil, nil, nil)
	return err
}

// Session wraps an existing session token.
func (c *Connector) Session(token, userID, username string) *Client {
	return &Client{conn: c, token: token, userID: userID, username: username}
}

// do issues one request. The call waits for the rate limiter and an in-flight slot, and is
// bounded by the connector timeout on top of ctx.
func (c *Connector) do(ctx context.Context, op, token, method, path string, query url.Values, in, out any) (http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.fail(ctx, op, err)
	}
	if err := c.inFlight.Acquire(ctx, 1); err != nil {
		return nil, c.fail(ctx, op, err)
	}
	defer c.inFlight.Release(1)

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, apperr.External(op, err)
		}
		body = bytes.NewReader(raw)
	}
	target := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, apperr.External(op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(ctx, op, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("backend call",
		slog.String("op", op),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apperr.ExternalServiceError{Op: op, Status: resp.StatusCode, Cause: decodeAPIError(resp)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, c.fail(ctx, op, fmt.Errorf("decode response: %w", err))
	}
	return resp.Header, nil
}

// fail wraps err, reporting a timeout when the call's deadline has passed.
func (c *Connector) fail(ctx context.Context, op string, err error) error {
	ext := apperr.External(op, err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		ext.Timeout = true
	}
	return ext
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
		return &apiErr
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return errors.New(msg)
}

// Client is a backend session for one user. It is safe for concurrent use.
type Client struct {
	conn     *Connector
	token    string
	userID   string
	username string
}

// UserID returns the backend ID of the session's user.
func (c *Client) UserID() string { return c.userID }

// Username returns the backend username of the session's user.
func (c *Client) Username() string { return c.username }

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	_, err := c.conn.do(ctx, op, c.token, http.MethodGet, path, query, nil, out)
	return err
}

func (c *Client) send(ctx context.Context, op, method, path string, in, out any) error {
	_, err := c.conn.do(ctx, op, c.token, method, path, nil, in, out)
	return err
}

// listAll walks a page/per_page endpoint until the backend returns a short page.
func listAll[T any](ctx context.Context, c *Client, op, path string) ([]T, error) {
	var all []T
	for page := 0; ; page++ {
		var batch []T
		query := url.Values{
			"page":     {fmt.Sprint(page)},
			"per_page": {fmt.Sprint(listPageSize)},
		}
		if err := c.get(ctx, op, path, query, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < listPageSize {
			return all, nil
		}
	}
}
