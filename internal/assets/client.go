package assets

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
	"strings"

	domainerrors "github.com/listenupapp/shelfsync/internal/errors"
)

// Client uploads images to POST <base>/upload.
type Client struct {
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger
}

// NewClient creates an upload client for the server at baseURL.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   strings.TrimSuffix(baseURL, "/") + "/upload",
		logger:     logger,
	}
}

// Upload sends the image read from r under name and returns the stored URL.
// Non-image content is rejected before anything is sent.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (Upload, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return Upload{}, fmt.Errorf("read image: %w", err)
	}
	mtype, err := DetectImage(data)
	if err != nil {
		return Upload{}, err
	}
	name = fileName(name, mtype)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FormField, name))
	header.Set("Content-Type", mtype.String())
	part, err := mw.CreatePart(header)
	if err != nil {
		return Upload{}, fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return Upload{}, fmt.Errorf("write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Upload{}, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return Upload{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Upload{}, domainerrors.NetworkUnavailable(err, "upload: server unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Upload{}, domainerrors.NetworkUnavailable(err, "upload: read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return Upload{}, domainerrors.RemoteRejected(resp.StatusCode,
			fmt.Sprintf("upload: status %d: %s", resp.StatusCode, msg))
	}

	var out Upload
	if err := json.Unmarshal(raw, &out); err != nil || out.URL == "" {
		return Upload{}, domainerrors.RemoteRejected(resp.StatusCode, "upload: malformed response")
	}

	c.logger.Info("image uploaded", "file", out.FileName, "size", len(data), "type", mtype.String())
	return out, nil
}
