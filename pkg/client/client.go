// Package client provides an HTTP client for the Oasis API with retry and
// auth.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Fabeuss/oasis/pkg/models"
	"github.com/Fabeuss/oasis/pkg/protocol"
	"github.com/Fabeuss/oasis/pkg/retry"
)

// Client provides HTTP client with retry and auth.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config
	log         *zap.Logger

	mu        sync.RWMutex
	online    bool
	lastPing  time.Time
	authToken string
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
	AuthToken   string
	Logger      *zap.Logger
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
		log:         cfg.Logger,
		online:      true,
		authToken:   cfg.AuthToken,
	}
}

// SetAuthToken sets the JWT auth token for requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// applyAuth adds the auth header to a request if a token is set.
func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// IsOnline returns true if the server was reachable on the last request.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			c.log.Info("server is back online")
		} else {
			c.log.Error("server is offline")
		}
	}
	c.online = online
	c.lastPing = time.Now()
}

// Ping checks if the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setOnline(false)
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	c.setOnline(true)
	return nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

// do sends a request built by build, retrying transport failures and 5xx.
// A 2xx response is returned open; everything else is closed and turned
// into an error.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	return retry.DoWithResult(ctx, c.retryConfig, func() (*http.Response, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.setOnline(false)
			return nil, retry.Retryable(err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.setOnline(true)
			return resp, nil
		}
		defer resp.Body.Close()

		apiErr := &APIError{Status: resp.StatusCode}
		var errResp protocol.ErrorResponse
		if json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&errResp) == nil {
			apiErr.Message = errResp.Error
		}
		if resp.StatusCode >= 500 {
			c.setOnline(false)
			return nil, retry.Retryable(apiErr)
		}
		c.setOnline(true)
		return nil, apiErr
	})
}

func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	resp, err := c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, "GET", u, nil)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) sendJSON(ctx context.Context, method, u string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

// EncodeComponent percent-encodes s for use as a single query value or
// path segment. Spaces become %20 and '/' becomes %2F.
func EncodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// filePath encodes each segment of a slash-separated relative path.
func filePath(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		segs[i] = EncodeComponent(s)
	}
	return strings.Join(segs, "/")
}

// ─── Browsing ───────────────────────────────────────────────────────────────

// List returns the entries of the directory at path ("" for the root).
func (c *Client) List(ctx context.Context, path string) ([]models.FileEntry, error) {
	var resp protocol.ListResponse
	if err := c.getJSON(ctx, c.baseURL+"/api/v1/dir?path="+EncodeComponent(path), &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Search finds entries under dir whose names match every keyword.
func (c *Client) Search(ctx context.Context, dir string, keywords []string) ([]models.FileEntry, error) {
	q := url.Values{}
	q.Set("keywords", strings.Join(keywords, " "))
	u := c.baseURL + "/api/v1/file/search?" + q.Encode()
	if dir != "" {
		u += "&path=" + EncodeComponent(dir)
	}

	var resp protocol.SearchResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ─── Content ────────────────────────────────────────────────────────────────

// Content is an open download.
type Content struct {
	io.ReadCloser
	ContentType string
	Length      int64 // bytes in this response
	Total       int64 // size of the whole file
	Partial     bool
}

// Fetch downloads the file at path. A length of zero fetches from offset to
// the end of the file.
func (c *Client) Fetch(ctx context.Context, path string, offset, length int64) (*Content, error) {
	return c.fetch(ctx, c.baseURL+"/api/v1/file/"+filePath(path), offset, length)
}

// FetchShared downloads through a share link given in its query string form
// ("hash=...&expire=...&path=..."). No session token is needed.
func (c *Client) FetchShared(ctx context.Context, link string, offset, length int64) (*Content, error) {
	return c.fetch(ctx, c.baseURL+"/api/v1/file/share?"+strings.TrimPrefix(link, "?"), offset, length)
}

func (c *Client) fetch(ctx context.Context, u string, offset, length int64) (*Content, error) {
	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
		if err != nil {
			return nil, err
		}
		if offset > 0 || length > 0 {
			end := ""
			if length > 0 {
				end = strconv.FormatInt(offset+length-1, 10)
			}
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%s", offset, end))
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	content := &Content{
		ReadCloser:  resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Length:      resp.ContentLength,
		Total:       resp.ContentLength,
		Partial:     resp.StatusCode == http.StatusPartialContent,
	}
	if content.Partial {
		total, err := parseContentRangeTotal(resp.Header.Get("Content-Range"))
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		content.Total = total
	}
	return content, nil
}

// parseContentRangeTotal reads the size from "bytes a-b/size".
func parseContentRangeTotal(v string) (int64, error) {
	_, total, ok := strings.Cut(v, "/")
	if !ok || !strings.HasPrefix(v, "bytes ") {
		return 0, fmt.Errorf("bad Content-Range %q", v)
	}
	return strconv.ParseInt(total, 10, 64)
}

// ─── Sharing ────────────────────────────────────────────────────────────────

// CreateShareLink asks the server to sign a link for path valid until
// expire. It returns the link's query string.
func (c *Client) CreateShareLink(ctx context.Context, path string, expire time.Time) (string, error) {
	resp, err := c.sendJSON(ctx, "POST", c.baseURL+"/api/v1/file/share", protocol.ShareLinkRequest{
		Path:   path,
		Expire: expire.Unix(),
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ShareURL turns a link query string into a full URL for this server.
func (c *Client) ShareURL(link string) string {
	return c.baseURL + "/api/v1/file/share?" + link
}

// ─── Mutations ──────────────────────────────────────────────────────────────

// CreateDirectory creates name inside parent. Requires an admin token.
func (c *Client) CreateDirectory(ctx context.Context, parent, name string) (*models.FileEntry, error) {
	resp, err := c.sendJSON(ctx, "POST", c.baseURL+"/api/v1/dir", protocol.CreateDirRequest{
		Parent: EncodeComponent(parent),
		Name:   name,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var entry models.FileEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Rename gives path a new name in the same directory. Requires an admin token.
func (c *Client) Rename(ctx context.Context, path, newName string) (*models.FileEntry, error) {
	resp, err := c.sendJSON(ctx, "PUT", c.baseURL+"/api/v1/file/"+filePath(path), protocol.RenameRequest{
		NewName: newName,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var entry models.FileEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeletePath deletes a file or directory on the server. Requires an admin
// token.
func (c *Client) DeletePath(ctx context.Context, path string) error {
	resp, err := c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, "DELETE", c.baseURL+"/api/v1/file/"+filePath(path), nil)
	})
	if StatusOf(err) == http.StatusNotFound {
		return nil // Already deleted
	}
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
