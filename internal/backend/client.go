// Package backend talks to the remote SOS service over REST.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rakshak/internal/models"
	"rakshak/pkg/logger"
)

var (
	ErrUnavailable = errors.New("backend unavailable")
	ErrNoSessionID = errors.New("backend returned no session id")
)

// StatusError carries a non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUnavailable }

// Temporary reports whether retrying the same request could succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// IsRetryable is false only for client errors the backend will keep rejecting.
func IsRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return !errors.Is(err, context.Canceled)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.WithComponent("backend"),
	}
}

// CreateSOS creates the remote session record and returns its id.
func (c *Client) CreateSOS(ctx context.Context, userID string, loc models.Location) (string, error) {
	body := models.CreateSOSRequest{
		UserID:   userID,
		Location: loc.Coordinates(),
		Status:   models.SessionStatusActive,
	}

	var resp models.CreateSOSResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/sos-alert", body, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.SOS == nil || resp.SOS.ID == "" {
		return "", ErrNoSessionID
	}
	return resp.SOS.ID, nil
}

func (c *Client) UpdateSOS(ctx context.Context, sessionID string, update models.StatusUpdate) error {
	if sessionID == "" {
		return ErrNoSessionID
	}
	return c.doJSON(ctx, http.MethodPut, "/api/sos-alert/"+url.PathEscape(sessionID), update, nil)
}

// GetUserDetails resolves trusted contacts, the alert message and the code word.
func (c *Client) GetUserDetails(ctx context.Context, userID string) (*models.UserDetails, error) {
	var resp models.UserDetailsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/user/"+url.PathEscape(userID)+"/details", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Details == nil {
		return nil, fmt.Errorf("%w: user details not available", ErrUnavailable)
	}
	if resp.Details.Message == "" {
		resp.Details.Message = models.DefaultAlertMessage
	}
	return resp.Details, nil
}

// UploadMedia posts one file as multipart form data together with the session id.
func (c *Client) UploadMedia(ctx context.Context, sessionID, field, filename, contentType, path string) error {
	if sessionID == "" {
		return ErrNoSessionID
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if filename == "" {
		filename = filepath.Base(path)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("sosAlertId", sessionID); err != nil {
		return err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/media/upload", &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req, "/api/media/upload", nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out interface{}) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, req.Method, path, err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(map[string]interface{}{
		"method":      req.Method,
		"path":        path,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Backend call")

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			Method:     req.Method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to unmarshal response: %v", ErrUnavailable, err)
	}
	return nil
}
