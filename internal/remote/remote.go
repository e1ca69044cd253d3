// Package remote talks to a caption service over HTTP: the speech-to-text
// endpoint and the server-side render endpoint.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mgpai22/capsync/internal/caption"
	"github.com/mgpai22/capsync/internal/logging"
	"github.com/mgpai22/capsync/internal/style"
)

const DefaultBaseURL = "http://127.0.0.1:8000"

// ServiceError is a non-success answer from the remote service.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote service returned %d", e.Status)
	}
	return fmt.Sprintf("remote service returned %d: %s", e.Status, e.Message)
}

// TransportError is a failure to reach the service or to receive its full
// answer: refused connections, DNS failures, resets, truncated bodies.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *logging.Logger
}

func NewClient(baseURL string, logger *logging.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Minute},
		Logger:  logging.OrNop(logger),
	}
}

// Transcribe uploads a media file and returns the service's segments.
func (c *Client) Transcribe(ctx context.Context, mediaPath string) ([]caption.Segment, error) {
	resp, err := c.post(ctx, "/transcribe", mediaPath, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Op: "read transcription response", Err: err}
	}
	segs, err := caption.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}
	return segs, nil
}

// Render uploads the video with its captions and writes the rendered file
// to outPath. The file only appears once the response is fully received.
func (c *Client) Render(ctx context.Context, videoPath string, segs []caption.Segment, key style.Key, outPath string) error {
	payload, err := caption.MarshalEnvelope(segs)
	if err != nil {
		return err
	}
	fields := map[string]string{
		"segments_json": string(payload),
		"style":         string(key),
	}

	resp, err := c.post(ctx, "/render", videoPath, fields)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// the service reports some failures as a 200 JSON body
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &ServiceError{Status: resp.StatusCode, Message: errorMessage(body)}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(outPath), "."+filepath.Base(outPath)+".partial-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Op: "download rendered video", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	c.Logger.Debugw("remote render complete", "output", outPath)
	return nil
}

// streams a multipart form with the file under "file" plus extra fields
func (c *Client) post(ctx context.Context, path, filePath string, fields map[string]string) (*http.Response, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer f.Close()
		err := writeForm(mw, f, filepath.Base(filePath), fields)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	c.Logger.Debugw("remote request", "url", req.URL.String(), "file", filePath)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Op: "request " + path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, &ServiceError{Status: resp.StatusCode, Message: errorMessage(body)}
	}
	return resp, nil
}

func writeForm(mw *multipart.Writer, r io.Reader, name string, fields map[string]string) error {
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	return nil
}

// pulls "error" or "detail" out of a JSON error body, else returns the text
func errorMessage(body []byte) string {
	var payload struct {
		Error  string          `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if len(payload.Detail) > 0 {
			var s string
			if json.Unmarshal(payload.Detail, &s) == nil {
				return s
			}
			return string(payload.Detail)
		}
	}
	return strings.TrimSpace(string(body))
}

// IsServiceError reports whether err came from the remote service or the
// connection to it rather than the local side of the exchange.
func IsServiceError(err error) bool {
	var (
		se *ServiceError
		te *TransportError
	)
	return errors.As(err, &se) || errors.As(err, &te)
}
