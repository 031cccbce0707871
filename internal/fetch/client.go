package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"likevault/internal/logging"
	"likevault/internal/services"
	"likevault/internal/store"
)

// DefaultTimeout bounds a single download attempt.
const DefaultTimeout = 300 * time.Second

// Request describes one file to download.
type Request struct {
	URL  string
	Kind store.MediaKind
	Dir  string
	// Name is the file name without extension.
	Name string
	// MaxBytes caps the body; zero disables the cap.
	MaxBytes int64
}

// Result describes a stored download.
type Result struct {
	Path        string
	Size        int64
	ContentType string
}

// Client downloads media over HTTP.
type Client struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	logger     *slog.Logger
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

// WithUserAgent sets the User-Agent header.
func WithUserAgent(agent string) Option {
	return func(c *Client) {
		if strings.TrimSpace(agent) != "" {
			c.userAgent = strings.TrimSpace(agent)
		}
	}
}

// WithTimeout bounds each download attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "fetch")
	}
}

// New creates a download client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		userAgent:  "likevault",
		timeout:    DefaultTimeout,
		logger:     logging.NewComponentLogger(nil, "fetch"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Download fetches req.URL into req.Dir and returns the stored file.
func (c *Client) Download(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.URL) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "fetch", "download", "url is required", nil)
	}
	if strings.TrimSpace(req.Dir) == "" || strings.TrimSpace(req.Name) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "fetch", "download", "target directory and name are required", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "fetch", "build request", req.URL, err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, services.Wrap(services.ErrTimeout, "fetch", "get", req.URL, err)
		}
		return Result{}, services.Wrap(services.ErrTransient, "fetch", "get", req.URL, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, req.URL); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Result{}, err
	}
	if req.MaxBytes > 0 && resp.ContentLength > req.MaxBytes {
		return Result{}, services.Wrap(services.ErrOversize, "fetch", "get",
			fmt.Sprintf("content length %d exceeds cap %d", resp.ContentLength, req.MaxBytes), nil)
	}

	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "fetch", "prepare dir", req.Dir, err)
	}
	target := filepath.Join(req.Dir, req.Name+Extension(req.URL, req.Kind))
	partial := target + ".part"

	size, err := writeBody(partial, resp.Body, req.MaxBytes)
	if err != nil {
		_ = os.Remove(partial)
		if errors.Is(err, services.ErrOversize) {
			return Result{}, err
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, services.Wrap(services.ErrTimeout, "fetch", "read body", req.URL, err)
		}
		return Result{}, services.Wrap(services.ErrTransient, "fetch", "read body", req.URL, err)
	}
	if err := os.Rename(partial, target); err != nil {
		_ = os.Remove(partial)
		return Result{}, services.Wrap(services.ErrTransient, "fetch", "finalize", target, err)
	}

	c.logger.Debug("download stored",
		logging.String("url", req.URL),
		logging.String("path", target),
		logging.Bytes("size", size),
	)
	return Result{Path: target, Size: size, ContentType: resp.Header.Get("Content-Type")}, nil
}

func writeBody(path string, body io.Reader, maxBytes int64) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	reader := body
	if maxBytes > 0 {
		reader = io.LimitReader(body, maxBytes+1)
	}
	written, copyErr := io.Copy(file, reader)
	closeErr := file.Close()
	if copyErr != nil {
		return written, copyErr
	}
	if closeErr != nil {
		return written, closeErr
	}
	if maxBytes > 0 && written > maxBytes {
		return written, services.Wrap(services.ErrOversize, "fetch", "read body",
			fmt.Sprintf("body exceeds cap %d", maxBytes), nil)
	}
	return written, nil
}

func classifyStatus(code int, rawURL string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return services.Wrap(services.ErrNotFound, "fetch", "get", fmt.Sprintf("%s returned %d", rawURL, code), nil)
	default:
		return services.Wrap(services.ErrTransient, "fetch", "get", fmt.Sprintf("%s returned %d", rawURL, code), nil)
	}
}

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// Extension picks the stored file extension: images keep a recognised URL
// extension (default .jpg) and gifs keep .gif when the URL serves a real GIF.
// Other gifs and all videos become .mp4, anything else .bin.
func Extension(rawURL string, kind store.MediaKind) string {
	switch kind {
	case store.KindVideo:
		return ".mp4"
	case store.KindGIF:
		// Reddit serves transcoded variants as name.gif?format=mp4.
		if urlExtension(rawURL) == ".gif" && !strings.Contains(strings.ToLower(rawURL), "format=mp4") {
			return ".gif"
		}
		return ".mp4"
	case store.KindImage:
		ext := urlExtension(rawURL)
		if _, ok := imageExtensions[ext]; ok {
			return ext
		}
		return ".jpg"
	default:
		return ".bin"
	}
}

func urlExtension(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(parsed.Path))
}
