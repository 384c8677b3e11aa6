// VN Tracker
// Copyright (c) 2025 The VN Tracker Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of VN Tracker.
//
// VN Tracker is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// VN Tracker is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with VN Tracker.  If not, see <http://www.gnu.org/licenses/>.

// Package vndb searches the VNDB Kana API for visual novel titles and
// caches their cover images on disk.
package vndb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"
)

const (
	DefaultURL = "https://api.vndb.org/kana"

	// MaxResults is the largest page the API returns.
	MaxResults = 100

	requestTimeout = 10 * time.Second
	maxCoverBytes  = 8 << 20
	fields         = "id, title, image.url"
)

var (
	ErrNotFound = errors.New("visual novel not found")
	ErrNoCover  = errors.New("visual novel has no cover image")
	ErrBadID    = errors.New("invalid vndb id")

	idRe = regexp.MustCompile(`^v[0-9]+$`)
)

type Image struct {
	URL string `json:"url"`
}

type VN struct {
	Image *Image `json:"image,omitempty"`
	ID    string `json:"id"`
	Title string `json:"title"`
}

type query struct {
	Filters []any  `json:"filters,omitempty"`
	Fields  string `json:"fields"`
	Sort    string `json:"sort,omitempty"`
	Results int    `json:"results"`
}

type queryResponse struct {
	Results []VN `json:"results"`
	More    bool `json:"more"`
}

// Client talks to the VNDB API. Requests share one rate limiter so cover
// downloads and searches together stay under the API's limit of 200
// requests per five minutes.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	fs         afero.Fs
	baseURL    string
	coverDir   string
}

func NewClient(httpClient *http.Client, fs afero.Fs, baseURL, coverDir string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Every(1500*time.Millisecond), 5),
		fs:         fs,
		baseURL:    strings.TrimRight(baseURL, "/"),
		coverDir:   coverDir,
	}
}

// NewDefaultClient uses the OS filesystem and a client with a request
// timeout.
func NewDefaultClient(baseURL, coverDir string) *Client {
	return NewClient(&http.Client{Timeout: requestTimeout}, afero.NewOsFs(), baseURL, coverDir)
}

// SetLimiter replaces the request rate limiter.
func (c *Client) SetLimiter(l *rate.Limiter) {
	c.limiter = l
}

func statusError(statusCode int, body []byte) error {
	bodyPreview := string(body)
	if len(bodyPreview) > 200 {
		bodyPreview = bodyPreview[:200] + "..."
	}
	if statusCode == http.StatusTooManyRequests {
		return fmt.Errorf("VNDB API returned %d (rate limited): %s", statusCode, bodyPreview)
	}
	return fmt.Errorf("VNDB API returned %d: %s", statusCode, bodyPreview)
}

func (c *Client) do(ctx context.Context, req *http.Request, limit int64) (statusCode int, body []byte, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("vndb: failed to close response body")
		}
	}()

	body, err = io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) query(ctx context.Context, q query) (*queryResponse, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/vn", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	statusCode, body, err := c.do(ctx, req, 1<<20)
	if err != nil {
		return nil, err
	}
	if statusCode != http.StatusOK {
		return nil, statusError(statusCode, body)
	}

	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return &resp, nil
}

// Search returns visual novels matching text. An empty text lists titles
// alphabetically.
func (c *Client) Search(ctx context.Context, text string, limit int) ([]VN, error) {
	limit = max(1, min(limit, MaxResults))
	q := query{Fields: fields, Sort: "title", Results: limit}
	if text = strings.TrimSpace(text); text != "" {
		q.Filters = []any{"search", "=", text}
		q.Sort = "searchrank"
	}

	resp, err := c.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("vndb search %q: %w", text, err)
	}
	log.Debug().Str("query", text).Int("results", len(resp.Results)).Msg("vndb: search")
	return resp.Results, nil
}

// Get fetches one visual novel by its id, such as "v17".
func (c *Client) Get(ctx context.Context, id string) (VN, error) {
	if !idRe.MatchString(id) {
		return VN{}, fmt.Errorf("%w: %q", ErrBadID, id)
	}
	resp, err := c.query(ctx, query{
		Filters: []any{"id", "=", id},
		Fields:  fields,
		Results: 1,
	})
	if err != nil {
		return VN{}, fmt.Errorf("vndb get %s: %w", id, err)
	}
	if len(resp.Results) == 0 {
		return VN{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return resp.Results[0], nil
}

// CoverPath is where the cover for id is cached.
func (c *Client) CoverPath(id string) string {
	return filepath.Join(c.coverDir, id+".jpg")
}

// Cover returns the cover image bytes for vn, downloading and caching it
// on the first request.
func (c *Client) Cover(ctx context.Context, vn VN) ([]byte, error) {
	if !idRe.MatchString(vn.ID) {
		return nil, fmt.Errorf("%w: %q", ErrBadID, vn.ID)
	}
	path := c.CoverPath(vn.ID)

	data, err := afero.ReadFile(c.fs, path)
	if err == nil && len(data) > 0 {
		return data, nil
	}

	if vn.Image == nil || vn.Image.URL == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoCover, vn.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, vn.Image.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	statusCode, data, err := c.do(ctx, req, maxCoverBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to download cover: %w", err)
	}
	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("cover download failed with status %d", statusCode)
	}

	if err := c.fs.MkdirAll(c.coverDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cover directory: %w", err)
	}
	if err := afero.WriteFile(c.fs, path, data, 0o600); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("vndb: failed to cache cover")
	}
	return data, nil
}

// ClearCovers removes every cached cover.
func (c *Client) ClearCovers() error {
	if err := c.fs.RemoveAll(c.coverDir); err != nil {
		return fmt.Errorf("failed to clear cover cache: %w", err)
	}
	return nil
}
