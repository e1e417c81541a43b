// Package covers looks up book covers and edition counts on OpenLibrary.
package covers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	domainerrors "github.com/listenupapp/shelfsync/internal/errors"
)

// Default endpoints.
const (
	DefaultSearchURL = "https://openlibrary.org"
	DefaultCoversURL = "https://covers.openlibrary.org"
)

// Options configures a Client.
type Options struct {
	SearchURL  string
	CoversURL  string
	Timeout    time.Duration
	HTTPClient *http.Client
	// Limit caps request rate. Zero selects one request per second, burst 3.
	Limit rate.Limit
	Burst int
}

// Client queries the OpenLibrary search API.
type Client struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	searchURL   string
	coversURL   string
	logger      *slog.Logger
}

// NewClient creates a new OpenLibrary client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.SearchURL == "" {
		opts.SearchURL = DefaultSearchURL
	}
	if opts.CoversURL == "" {
		opts.CoversURL = DefaultCoversURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Limit == 0 {
		opts.Limit = rate.Every(time.Second)
	}
	if opts.Burst <= 0 {
		opts.Burst = 3
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		httpClient:  opts.HTTPClient,
		rateLimiter: rate.NewLimiter(opts.Limit, opts.Burst),
		searchURL:   strings.TrimSuffix(opts.SearchURL, "/"),
		coversURL:   strings.TrimSuffix(opts.CoversURL, "/"),
		logger:      logger,
	}
}

// searchDoc is one document of a search.json answer.
type searchDoc struct {
	Title        string   `json:"title"`
	AuthorName   []string `json:"author_name"`
	CoverID      int64    `json:"cover_i"`
	EditionCount int      `json:"edition_count"`
}

type searchResponse struct {
	NumFound int         `json:"numFound"`
	Docs     []searchDoc `json:"docs"`
}

// CoverURL returns the large cover image URL for an OpenLibrary cover id.
func (c *Client) CoverURL(coverID int64) string {
	return c.coversURL + "/b/id/" + strconv.FormatInt(coverID, 10) + "-L.jpg"
}

// FindCover searches by title and returns the cover URL of the best match.
// ok is false when no result carries a cover.
func (c *Client) FindCover(ctx context.Context, title string) (coverURL string, ok bool, err error) {
	resp, err := c.search(ctx, title, "")
	if err != nil {
		return "", false, err
	}
	doc, found := bestMatch(resp.Docs, title)
	if !found || doc.CoverID == 0 {
		return "", false, nil
	}
	return c.CoverURL(doc.CoverID), true, nil
}

// EditionCount returns the number of editions of the first result for title
// and author, or 0 when nothing matches.
func (c *Client) EditionCount(ctx context.Context, title, author string) (int, error) {
	resp, err := c.search(ctx, title, author)
	if err != nil {
		return 0, err
	}
	if len(resp.Docs) == 0 {
		return 0, nil
	}
	return resp.Docs[0].EditionCount, nil
}

func (c *Client) search(ctx context.Context, title, author string) (*searchResponse, error) {
	if strings.TrimSpace(title) == "" {
		return nil, domainerrors.Validation("title is required for a cover search")
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("title", QueryTitle(title))
	if author != "" {
		q.Set("author", QueryTitle(author))
	}
	endpoint := c.searchURL + "/search.json?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("openlibrary search", "title", title, "author", author)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domainerrors.NetworkUnavailable(err, "openlibrary unreachable")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 256)) //nolint:errcheck // Best effort for the message
		return nil, domainerrors.RemoteRejected(res.StatusCode,
			fmt.Sprintf("openlibrary search: status %d: %s", res.StatusCode, strings.TrimSpace(string(body))))
	}

	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &out, nil
}
