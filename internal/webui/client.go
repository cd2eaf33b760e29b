// Package webui is a typed client for the Open WebUI knowledge API the
// archivist pushes conversations into.
package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	archerrors "github.com/harunnryd/archivist/internal/errors"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultHealthTimeout = 5 * time.Second
	DefaultHealthPath    = "/api/v1/health"

	maxErrorBody = 4 << 10
)

type Options struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	HealthTimeout time.Duration
	HealthPath    string
	// Fallbacks are consulted in order when the primary token cannot see a chat.
	Fallbacks  []CredentialProvider
	HTTPClient *http.Client
}

type Client struct {
	baseURL       string
	token         string
	healthTimeout time.Duration
	healthPath    string
	fallbacks     []CredentialProvider
	http          *http.Client
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, archerrors.InvalidInput("webui base url is empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, archerrors.InvalidInput(fmt.Sprintf("webui base url %q: %v", base, err))
	}
	if strings.TrimSpace(opts.Token) == "" {
		return nil, archerrors.InvalidInput("webui token is empty")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	healthTimeout := opts.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = DefaultHealthTimeout
	}
	healthPath := strings.TrimSpace(opts.HealthPath)
	if healthPath == "" {
		healthPath = DefaultHealthPath
	}
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:       base,
		token:         opts.Token,
		healthTimeout: healthTimeout,
		healthPath:    healthPath,
		fallbacks:     opts.Fallbacks,
		http:          httpClient,
	}, nil
}

// IsReachable probes the health endpoint with a short timeout. The loops use
// it to skip a whole cycle instead of failing every file in it.
func (c *Client) IsReachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("WebUI health probe failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// UploadFile pushes the file at path under filename and returns the remote file id.
func (c *Client) UploadFile(ctx context.Context, path string, filename string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", "text/plain; charset=utf-8")
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy %s: %w", filepath.Base(path), err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	var out FileResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/files/", c.token, &buf, mw.FormDataContentType(), &out); err != nil {
		return "", archerrors.Wrap(err, "upload file")
	}
	if out.ID == "" {
		return "", archerrors.Internal("upload file: response has no file id")
	}
	return out.ID, nil
}

// UpdateFileContent replaces the extracted text of an existing remote file.
func (c *Client) UpdateFileContent(ctx context.Context, fileID string, content string) error {
	body := map[string]string{"content": content}
	path := "/api/v1/files/" + url.PathEscape(fileID) + "/data/content/update"
	return archerrors.Wrap(c.doJSON(ctx, http.MethodPost, path, body, nil), "update file content")
}

func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	path := "/api/v1/files/" + url.PathEscape(fileID)
	return archerrors.Wrap(c.do(ctx, http.MethodDelete, path, c.token, nil, "", nil), "delete file")
}

func (c *Client) GetKnowledge(ctx context.Context, collectionID string) (*Knowledge, error) {
	var out Knowledge
	path := "/api/v1/knowledge/" + url.PathEscape(collectionID)
	if err := c.do(ctx, http.MethodGet, path, c.token, nil, "", &out); err != nil {
		return nil, archerrors.Wrap(err, "get knowledge")
	}
	return &out, nil
}

func (c *Client) linkFile(ctx context.Context, op string, fileID string, collectionID string) error {
	path := "/api/v1/knowledge/" + url.PathEscape(collectionID) + "/file/" + op
	return c.doJSON(ctx, http.MethodPost, path, map[string]string{"file_id": fileID}, nil)
}

// RemoveFromKnowledge unlinks a file from a collection.
func (c *Client) RemoveFromKnowledge(ctx context.Context, fileID string, collectionID string) error {
	return archerrors.Wrap(c.linkFile(ctx, "remove", fileID, collectionID), "remove from knowledge")
}

// ReindexKnowledgeFile asks the server to re-embed a file already in the collection.
func (c *Client) ReindexKnowledgeFile(ctx context.Context, fileID string, collectionID string) error {
	return archerrors.Wrap(c.linkFile(ctx, "update", fileID, collectionID), "reindex knowledge file")
}

func (c *Client) addFile(ctx context.Context, fileID string, collectionID string) error {
	return archerrors.Wrap(c.linkFile(ctx, "add", fileID, collectionID), "add to knowledge")
}

func (c *Client) doJSON(ctx context.Context, method, path string, in interface{}, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, method, path, c.token, bytes.NewReader(data), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path, token string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return archerrors.FromTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return archerrors.FromStatus(resp.StatusCode, string(raw))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return archerrors.Internal(fmt.Sprintf("decode %s %s response: %v", method, path, err))
	}
	return nil
}
