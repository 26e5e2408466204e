package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/inhapress/stockledger/internal/config"
)

var (
	// ErrNotFound is returned when the requested file does not exist.
	ErrNotFound = errors.New("github: file not found")
	// ErrConflict is returned when the file changed since the SHA the caller holds.
	ErrConflict = errors.New("github: file changed upstream")
)

// Client exposes the GitHub contents API operations used by the store.
type Client interface {
	GetFile(ctx context.Context, path string) (*File, error)
	PutFile(ctx context.Context, req PutFileRequest) error
}

// File is a decoded repository file with the blob SHA it was read at.
type File struct {
	Path    string
	SHA     string
	Content []byte
}

// PutFileRequest creates or updates a file. SHA must be the blob SHA the
// caller read; it is empty when creating the file.
type PutFileRequest struct {
	Path    string
	Message string
	Content []byte
	SHA     string
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient *resty.Client
	repo       string
	branch     string
}

// NewClient builds a contents API client for the configured repository.
func NewClient(cfg config.GitHubConfig) *APIClient {
	base := strings.TrimSuffix(cfg.BaseURL, "/")

	restyClient := resty.New()
	restyClient.
		SetBaseURL(base).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.Token)).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", "2022-11-28").
		SetTimeout(20 * time.Second)

	return &APIClient{
		httpClient: restyClient,
		repo:       cfg.Repo,
		branch:     cfg.Branch,
	}
}

type contentResponse struct {
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type blobResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// apiError represents a GitHub REST error payload.
type apiError struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}

func (c *APIClient) contentsPath(path string) string {
	return fmt.Sprintf("repos/%s/contents/%s", c.repo, escapePath(path))
}

// GetFile reads a file. Files over the contents API inline limit come back
// without content and are fetched through the blob API.
func (c *APIClient) GetFile(ctx context.Context, path string) (*File, error) {
	result := new(contentResponse)
	apiErr := new(apiError)

	req := c.httpClient.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr)
	if c.branch != "" {
		req.SetQueryParam("ref", c.branch)
	}

	resp, err := req.Get(c.contentsPath(path))
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, fmt.Errorf("github api error: code=%d, message=%s", resp.StatusCode(), apiErr.Message)
	}

	encoded, encoding := result.Content, result.Encoding
	if encoding == "none" || (encoded == "" && result.SHA != "") {
		blob, err := c.getBlob(ctx, result.SHA)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", path, err)
		}
		encoded, encoding = blob.Content, blob.Encoding
	}

	content, err := decodeContent(encoded, encoding)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &File{Path: result.Path, SHA: result.SHA, Content: content}, nil
}

func (c *APIClient) getBlob(ctx context.Context, sha string) (*blobResponse, error) {
	result := new(blobResponse)
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr).
		Get(fmt.Sprintf("repos/%s/git/blobs/%s", c.repo, sha))
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", sha, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, fmt.Errorf("github api error: code=%d, message=%s", resp.StatusCode(), apiErr.Message)
	}
	return result, nil
}

// PutFile commits new content for a file.
func (c *APIClient) PutFile(ctx context.Context, req PutFileRequest) error {
	payload := map[string]any{
		"message": req.Message,
		"content": base64.StdEncoding.EncodeToString(req.Content),
	}
	if req.SHA != "" {
		payload["sha"] = req.SHA
	}
	if c.branch != "" {
		payload["branch"] = c.branch
	}

	apiErr := new(apiError)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		SetError(apiErr).
		Put(c.contentsPath(req.Path))
	if err != nil {
		return fmt.Errorf("put %s: %w", req.Path, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, apiErr.Message)
	case code == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(apiErr.Message), "sha"):
		return fmt.Errorf("%w: %s", ErrConflict, apiErr.Message)
	case code >= http.StatusBadRequest:
		return fmt.Errorf("github api error: code=%d, message=%s", code, apiErr.Message)
	}
	return nil
}

func decodeContent(content, encoding string) ([]byte, error) {
	switch encoding {
	case "base64":
		return base64.StdEncoding.DecodeString(strings.ReplaceAll(content, "\n", ""))
	case "", "utf-8":
		return []byte(content), nil
	}
	return nil, fmt.Errorf("unsupported content encoding %q", encoding)
}

func escapePath(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
