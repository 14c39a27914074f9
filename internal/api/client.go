// Package api implements the HTTP/JSON client for the remote reading
// service: chapter and page listings, library CRUD, history, search, and
// source health.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"yomu/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "Yomu/1.0"
)

// Client implements domain.Client against the remote API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new API client.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

// SetToken updates the authentication token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// doRequest performs an authenticated HTTP request with an optional JSON body.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	reqURL := c.baseURL + path
	if query != nil {
		reqURL = fmt.Sprintf("%s?%s", reqURL, query.Encode())
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("api request", "method", method, "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Error("api request failed", "error", err)
		return nil, domain.ErrServerOffline
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return respBody, nil
	case http.StatusUnauthorized:
		return nil, domain.ErrAuthFailed
	case http.StatusNotFound:
		return nil, domain.ErrNotFound
	default:
		c.logger.Error("api request error", "status", resp.StatusCode, "body", string(respBody))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
}

// Search queries the aggregator catalog.
func (c *Client) Search(ctx context.Context, query string) ([]domain.TitleRef, error) {
	q := url.Values{}
	q.Set("q", query)

	body, err := c.doRequest(ctx, http.MethodGet, "/api/search", q, nil)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	return mapTitles(resp.Results), nil
}

// Similar returns similar-title recommendations for a title.
func (c *Client) Similar(ctx context.Context, titleID string) ([]domain.TitleRef, error) {
	q := url.Values{}
	q.Set("title", titleID)

	body, err := c.doRequest(ctx, http.MethodGet, "/api/similar", q, nil)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse similar response: %w", err)
	}
	return mapTitles(resp.Results), nil
}

// Chapters fetches one source's chapter listing for a title. When the
// request carried only an external catalog id, the response reports the
// resolved concrete identity.
func (c *Client) Chapters(ctx context.Context, req domain.ChapterRequest) (domain.ChapterPage, error) {
	q := url.Values{}
	q.Set("title", req.TitleID)
	if req.Source != "" {
		q.Set("source", req.Source)
	}
	if req.ExternalCatalogID != "" {
		q.Set("catalog", req.ExternalCatalogID)
	}
	q.Set("offset", strconv.Itoa(req.Offset))
	q.Set("limit", strconv.Itoa(req.Limit))

	body, err := c.doRequest(ctx, http.MethodGet, "/api/chapters", q, nil)
	if err != nil {
		return domain.ChapterPage{}, err
	}

	var resp chaptersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.ChapterPage{}, fmt.Errorf("failed to parse chapters response: %w", err)
	}
	return domain.ChapterPage{
		Chapters:         mapChapters(resp.Chapters),
		Total:            resp.Total,
		ResolvedSourceID: resp.ResolvedSourceID,
		ResolvedTitleID:  resp.ResolvedTitleID,
	}, nil
}

// Pages fetches the ordered page list of a chapter.
func (c *Client) Pages(ctx context.Context, chapterID, source string) ([]domain.Page, error) {
	q := url.Values{}
	q.Set("chapter", chapterID)
	q.Set("source", source)

	body, err := c.doRequest(ctx, http.MethodGet, "/api/pages", q, nil)
	if err != nil {
		return nil, err
	}

	var resp pagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse pages response: %w", err)
	}
	return mapPages(resp.Pages), nil
}

// FetchLibrary pulls the server-held library.
func (c *Client) FetchLibrary(ctx context.Context) ([]domain.LibraryEntry, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/library", nil, nil)
	if err != nil {
		return nil, err
	}

	var resp libraryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse library response: %w", err)
	}
	return resp.Entries, nil
}

// PushLibrary replaces the server-held library snapshot (last write wins).
func (c *Client) PushLibrary(ctx context.Context, entries []domain.LibraryEntry) error {
	_, err := c.doRequest(ctx, http.MethodPut, "/api/library", nil, libraryResponse{Entries: entries})
	return err
}

// AddToLibrary creates a library entry remotely.
func (c *Client) AddToLibrary(ctx context.Context, entry domain.LibraryEntry) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/library", nil, entry)
	return err
}

// UpdateStatus changes an entry's reading status.
func (c *Client) UpdateStatus(ctx context.Context, key string, status domain.ReadingStatus) error {
	path := "/api/library/" + url.PathEscape(key) + "/status"
	_, err := c.doRequest(ctx, http.MethodPatch, path, nil, statusBody{Status: status})
	return err
}

// UpdateProgress saves reading progress for an entry.
func (c *Client) UpdateProgress(ctx context.Context, key string, p domain.ProgressPayload) error {
	path := "/api/library/" + url.PathEscape(key) + "/progress"
	_, err := c.doRequest(ctx, http.MethodPatch, path, nil, p)
	return err
}

// RemoveFromLibrary deletes a library entry remotely.
func (c *Client) RemoveFromLibrary(ctx context.Context, key string) error {
	path := "/api/library/" + url.PathEscape(key)
	_, err := c.doRequest(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// RecordHistory appends a reading-history record.
func (c *Client) RecordHistory(ctx context.Context, rec domain.HistoryRecord) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/history", nil, rec)
	return err
}

// SourceHealth reports which sources are currently reachable.
func (c *Client) SourceHealth(ctx context.Context) (map[string]bool, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/sources/health", nil, nil)
	if err != nil {
		return nil, err
	}

	var resp healthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}
	return resp.Sources, nil
}
