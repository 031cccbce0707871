package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"likevault/internal/config"
	"likevault/internal/logging"
	"likevault/internal/services"
)

// pageSize is the largest page the listing endpoint serves.
const pageSize = 100

// tokenSlack renews the access token this long before it expires.
const tokenSlack = time.Minute

// Client talks to the Reddit OAuth API.
type Client struct {
	httpClient *http.Client
	authURL    string
	apiURL     string
	userAgent  string

	clientID     string
	clientSecret string
	username     string
	password     string

	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "reddit")
	}
}

// New builds a client from the [reddit] configuration section.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("reddit: config is required")
	}
	rc := cfg.Reddit
	if rc.ClientID == "" || rc.ClientSecret == "" || rc.Username == "" || rc.Password == "" {
		return nil, services.Wrap(services.ErrConfiguration, "reddit", "init", "client_id, client_secret, username and password are required", nil)
	}
	timeout := time.Duration(rc.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		httpClient:   &http.Client{Timeout: timeout},
		authURL:      strings.TrimRight(rc.AuthURL, "/"),
		apiURL:       strings.TrimRight(rc.APIURL, "/"),
		userAgent:    rc.UserAgent,
		clientID:     rc.ClientID,
		clientSecret: rc.ClientSecret,
		username:     rc.Username,
		password:     rc.Password,
		logger:       logging.NewComponentLogger(nil, "reddit"),
		now:          time.Now,
	}
	if strings.TrimSpace(c.userAgent) == "" {
		c.userAgent = fmt.Sprintf("likevault/0.1 (by /u/%s)", rc.Username)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Upvoted returns up to limit of the user's most recently upvoted posts,
// newest first.
func (c *Client) Upvoted(ctx context.Context, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = pageSize
	}
	posts := make([]Post, 0, limit)
	after := ""
	for len(posts) < limit {
		page := min(pageSize, limit-len(posts))
		listing, err := c.listingPage(ctx, page, after)
		if err != nil {
			return nil, err
		}
		for _, child := range listing.Data.Children {
			if child.Kind != "t3" {
				continue
			}
			posts = append(posts, child.Data.toPost())
		}
		after = listing.Data.After
		if after == "" || len(listing.Data.Children) == 0 {
			break
		}
	}
	c.logger.Debug("upvoted posts fetched", logging.Int("count", len(posts)))
	return posts, nil
}

// Authenticate requests a fresh access token, verifying the credentials.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.accessToken(ctx, true)
	return err
}

func (c *Client) listingPage(ctx context.Context, limit int, after string) (*listing, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("raw_json", "1")
	if after != "" {
		query.Set("after", after)
	}
	endpoint := fmt.Sprintf("%s/user/%s/upvoted?%s", c.apiURL, url.PathEscape(c.username), query.Encode())

	var out listing
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.accessToken(ctx, attempt > 0)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "reddit", "build request", endpoint, err)
		}
		req.Header.Set("Authorization", "bearer "+token)
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, transportError("listing", err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			drain(resp)
			continue
		}
		if err := statusError("listing", resp); err != nil {
			drain(resp)
			return nil, err
		}
		err = json.NewDecoder(resp.Body).Decode(&out)
		drain(resp)
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "reddit", "decode listing", "unexpected response body", err)
		}
		return &out, nil
	}
	return nil, services.Wrap(services.ErrConfiguration, "reddit", "listing", "access token rejected", nil)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// accessToken returns a cached token, requesting a new one when it is
// missing, near expiry or refresh is set.
func (c *Client) accessToken(ctx context.Context, refresh bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !refresh && c.token != "" && c.now().Before(c.expires.Add(-tokenSlack)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.username)
	form.Set("password", c.password)
	endpoint := c.authURL + "/api/v1/access_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "reddit", "build token request", endpoint, err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError("token", err)
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", services.Wrap(services.ErrConfiguration, "reddit", "token", "client credentials rejected", nil)
	}
	if err := statusError("token", resp); err != nil {
		return "", err
	}
	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "reddit", "decode token", "unexpected response body", err)
	}
	if tok.Error != "" || tok.AccessToken == "" {
		return "", services.Wrap(services.ErrConfiguration, "reddit", "token", "grant refused: "+tok.Error, nil)
	}
	c.token = tok.AccessToken
	c.expires = c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.logger.Debug("access token acquired", logging.Duration("expires_in", time.Duration(tok.ExpiresIn)*time.Second))
	return c.token, nil
}

func transportError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "reddit", operation, "request timed out", err)
	}
	return services.Wrap(services.ErrTransient, "reddit", operation, "request failed", err)
}

func statusError(operation string, resp *http.Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := fmt.Sprintf("status %d: %s", code, strings.TrimSpace(string(body)))
	switch {
	case code == http.StatusTooManyRequests || code >= 500:
		return services.Wrap(services.ErrTransient, "reddit", operation, detail, nil)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "reddit", operation, detail, nil)
	case code == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "reddit", operation, detail, nil)
	default:
		return services.Wrap(services.ErrExternalTool, "reddit", operation, detail, nil)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
