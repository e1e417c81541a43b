// Package remote is the HTTP client for the book server. Every failure is
// classified as either a network failure (the server could not be reached or
// did not answer in time) or a rejection (the server answered non-2xx).
package remote

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
	"strings"
	"time"

	"github.com/listenupapp/shelfsync/internal/domain"
	domainerrors "github.com/listenupapp/shelfsync/internal/errors"
	"github.com/listenupapp/shelfsync/internal/ratelimit"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRPS     = 10.0
	defaultBurst   = 20

	// Limit on how much of an error body is echoed into the error message.
	maxErrorBody = 512

	// HeaderIdempotencyKey carries the pending mutation id on replayable writes.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderClientID carries the installation id.
	HeaderClientID = "X-Client-ID"
)

// Options configures a Client.
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	DeviceID          string
	// HTTPClient overrides the default client. Its Timeout is left untouched.
	HTTPClient *http.Client
}

// Client is a rate-limited book server client.
type Client struct {
	base     *url.URL
	http     *http.Client
	limiter  *ratelimit.KeyedRateLimiter
	deviceID string
	logger   *slog.Logger
}

// New creates a Client.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRPS
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		base:     base,
		http:     httpClient,
		limiter:  ratelimit.New(opts.RequestsPerSecond, opts.Burst),
		deviceID: opts.DeviceID,
		logger:   logger,
	}, nil
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// CallOption adjusts an outgoing request.
type CallOption func(*http.Request)

// WithIdempotencyKey tags a write so the server can recognize a replay.
func WithIdempotencyKey(key string) CallOption {
	return func(r *http.Request) {
		if key != "" {
			r.Header.Set(HeaderIdempotencyKey, key)
		}
	}
}

// ListBooks fetches every book.
func (c *Client) ListBooks(ctx context.Context) ([]domain.Book, error) {
	var books []domain.Book
	if err := c.do(ctx, http.MethodGet, "/books", nil, &books); err != nil {
		return nil, err
	}
	if books == nil {
		books = []domain.Book{}
	}
	return books, nil
}

// GetBook fetches one book.
func (c *Client) GetBook(ctx context.Context, bookID int64) (domain.Book, error) {
	var book domain.Book
	err := c.do(ctx, http.MethodGet, bookPath(bookID), nil, &book)
	return book, err
}

// CreateBook posts a new book and returns the server's record.
func (c *Client) CreateBook(ctx context.Context, book domain.Book, opts ...CallOption) (domain.Book, error) {
	var created domain.Book
	err := c.do(ctx, http.MethodPost, "/books", book, &created, opts...)
	return created, err
}

// UpdateBook replaces a book with the full entity. An empty response body
// leaves the sent entity as the result.
func (c *Client) UpdateBook(ctx context.Context, book domain.Book, opts ...CallOption) (domain.Book, error) {
	updated := book
	err := c.do(ctx, http.MethodPut, bookPath(book.ID), book, &updated, opts...)
	return updated, err
}

// DeleteBook deletes a book.
func (c *Client) DeleteBook(ctx context.Context, bookID int64, opts ...CallOption) error {
	return c.do(ctx, http.MethodDelete, bookPath(bookID), nil, nil, opts...)
}

// ListNotes fetches the notes of a book.
func (c *Client) ListNotes(ctx context.Context, bookID int64) ([]domain.Note, error) {
	var notes []domain.Note
	if err := c.do(ctx, http.MethodGet, bookPath(bookID)+"/notes", nil, &notes); err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []domain.Note{}
	}
	return notes, nil
}

// CreateNote posts a note and returns the server's record.
func (c *Client) CreateNote(ctx context.Context, bookID int64, input domain.NoteInput, opts ...CallOption) (domain.Note, error) {
	var note domain.Note
	err := c.do(ctx, http.MethodPost, bookPath(bookID)+"/notes", input, &note, opts...)
	return note, err
}

// DeleteNote deletes a note.
func (c *Client) DeleteNote(ctx context.Context, bookID, noteID int64, opts ...CallOption) error {
	path := bookPath(bookID) + "/notes/" + strconv.FormatInt(noteID, 10)
	return c.do(ctx, http.MethodDelete, path, nil, nil, opts...)
}

// Health checks that the server answers with a 2xx.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func bookPath(bookID int64) string {
	return "/books/" + strconv.FormatInt(bookID, 10)
}

// do executes a JSON request with rate limiting and classifies the outcome.
func (c *Client) do(ctx context.Context, method, path string, in, out any, opts ...CallOption) error {
	op := method + " " + path

	if err := c.limiter.Wait(ctx, c.base.Host); err != nil {
		return domainerrors.NetworkUnavailable(err, op)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ShelfSync/1.0")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.deviceID != "" {
		req.Header.Set(HeaderClientID, c.deviceID)
	}
	for _, opt := range opts {
		opt(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("remote request failed", "op", op, "error", err)
		return domainerrors.NetworkUnavailable(err, op)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domainerrors.NetworkUnavailable(err, op)
	}

	c.logger.Debug("remote request",
		"op", op,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domainerrors.RemoteRejected(resp.StatusCode, rejectionMessage(op, resp.StatusCode, respBody))
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return domainerrors.RemoteRejected(resp.StatusCode, op+": malformed response body").WithCause(err)
	}
	return nil
}

func rejectionMessage(op string, status int, body []byte) string {
	msg := fmt.Sprintf("%s: server returned %d", op, status)
	text := strings.TrimSpace(string(body))
	if text == "" {
		return msg
	}
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return msg + ": " + text
}
