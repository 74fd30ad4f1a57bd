package openlibrary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	errs "github.com/matzehuels/shelfcache/pkg/errors"
	"github.com/matzehuels/shelfcache/pkg/integrations"
)

const (
	// DefaultBaseURL is the public Open Library API.
	DefaultBaseURL = "https://openlibrary.org"

	coversBaseURL = "https://covers.openlibrary.org"
)

// Author holds the author details shown on an author page.
//
// Zero values: all string fields may be empty, Photos may be nil.
type Author struct {
	Key       string   `json:"key"`                  // Open Library key, e.g. "OL26320A"
	Name      string   `json:"name"`                 // Display name (never empty in valid info)
	Bio       string   `json:"bio,omitempty"`        // Plain-text biography
	BirthDate string   `json:"birth_date,omitempty"` // Free-form, as entered upstream
	DeathDate string   `json:"death_date,omitempty"` // Free-form, as entered upstream
	TopWork   string   `json:"top_work,omitempty"`   // Best-known work title
	WorkCount int      `json:"work_count,omitempty"` // Number of works catalogued
	Photos    []string `json:"photos,omitempty"`     // Candidate photo URLs, upstream order
}

// Client provides access to the Open Library author endpoints.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates an Open Library client. Pass "" for baseURL to use
// [DefaultBaseURL] and nil for httpClient to use [integrations.NewHTTPClient].
func NewClient(baseURL string, httpClient *http.Client, logger *log.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		Client:  integrations.NewClient(httpClient, nil, logger),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// FetchAuthor resolves name to the best-matching author and loads its details.
//
// Returns:
//   - Author populated with metadata on success
//   - NOT_FOUND if the search has no match
//   - TRANSIENT_ERROR for timeouts, 5xx, and 429 (retryable)
//   - CLIENT_ERROR for other 4xx
//   - MALFORMED_RESPONSE for unexpected bodies
func (c *Client) FetchAuthor(ctx context.Context, name string) (*Author, error) {
	hit, err := c.SearchAuthor(ctx, name)
	if err != nil {
		return nil, err
	}
	a, err := c.Author(ctx, hit.Key)
	if err != nil {
		return nil, err
	}
	if a.TopWork == "" {
		a.TopWork = hit.TopWork
	}
	if a.WorkCount == 0 {
		a.WorkCount = hit.WorkCount
	}
	return a, nil
}

// SearchAuthor returns the first author search hit for name.
func (c *Client) SearchAuthor(ctx context.Context, name string) (*Author, error) {
	var data searchResponse
	url := fmt.Sprintf("%s/search/authors.json?q=%s&limit=1", c.baseURL, integrations.URLEncode(name))
	if err := c.Get(ctx, url, &data); err != nil {
		return nil, err
	}
	if len(data.Docs) == 0 {
		return nil, errs.New(errs.ErrCodeNotFound, "openlibrary author %q", name)
	}
	d := data.Docs[0]
	return &Author{
		Key:       d.Key,
		Name:      d.Name,
		BirthDate: d.BirthDate,
		TopWork:   d.TopWork,
		WorkCount: d.WorkCount,
	}, nil
}

// Author loads the author record for an Open Library key.
func (c *Client) Author(ctx context.Context, key string) (*Author, error) {
	key = strings.TrimPrefix(key, "/authors/")
	var data authorResponse
	if err := c.Get(ctx, fmt.Sprintf("%s/authors/%s.json", c.baseURL, key), &data); err != nil {
		if errs.Is(err, errs.ErrCodeNotFound) {
			return nil, errs.Wrap(errs.ErrCodeNotFound, err, "openlibrary author %s", key)
		}
		return nil, err
	}

	a := &Author{
		Key:       key,
		Name:      data.Name,
		Bio:       string(data.Bio),
		BirthDate: data.BirthDate,
		DeathDate: data.DeathDate,
	}
	for _, id := range data.Photos {
		if id > 0 {
			a.Photos = append(a.Photos, fmt.Sprintf("%s/a/id/%d-L.jpg", coversBaseURL, id))
		}
	}
	return a, nil
}

type searchResponse struct {
	NumFound int `json:"numFound"`
	Docs     []struct {
		Key       string `json:"key"`
		Name      string `json:"name"`
		BirthDate string `json:"birth_date"`
		TopWork   string `json:"top_work"`
		WorkCount int    `json:"work_count"`
	} `json:"docs"`
}

// Validate rejects search hits without a key.
func (r *searchResponse) Validate() error {
	for _, d := range r.Docs {
		if d.Key == "" {
			return errors.New("search hit without key")
		}
	}
	return nil
}

type authorResponse struct {
	Name      string    `json:"name"`
	Bio       textValue `json:"bio"`
	BirthDate string    `json:"birth_date"`
	DeathDate string    `json:"death_date"`
	Photos    []int64   `json:"photos"`
}

// Validate rejects author records without a name.
func (r *authorResponse) Validate() error {
	if r.Name == "" {
		return errors.New("author record without name")
	}
	return nil
}

// textValue accepts Open Library's two text encodings: a bare string or
// {"type": "/type/text", "value": "..."}.
type textValue string

func (t *textValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = textValue(s)
		return nil
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*t = textValue(obj.Value)
	return nil
}
