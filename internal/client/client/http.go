package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/client/models"
	"github.com/dmitrijs2005/fleetzen/internal/common"
	"github.com/dmitrijs2005/fleetzen/internal/netx"
)

// HTTPClient talks to the sync server over HTTP/JSON.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

// NewHTTPClient returns a client for the server at baseURL. Every call is
// bounded by timeout.
func NewHTTPClient(baseURL string, timeout time.Duration, token TokenSource) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	if token == nil {
		token = StaticToken("")
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		token:   token,
	}, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, "", false, nil)
}

// WhoAmI returns the agent id the server reads from the access token.
func (c *HTTPClient) WhoAmI(ctx context.Context) (string, error) {
	var out api.AgentResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, "", true, &out); err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

// CreateIntervention sends one payload for direct reconciliation. The bool
// reports whether the server created a new record.
func (c *HTTPClient) CreateIntervention(ctx context.Context, p *api.InterventionPayload) (*api.Intervention, bool, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, false, err
	}

	var out api.InterventionResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/interventions", bytes.NewReader(body), "application/json", true, &out); err != nil {
		return nil, false, err
	}
	return &out.Data, out.Created, nil
}

func (c *HTTPClient) SyncBatch(ctx context.Context, items []api.InterventionPayload) (*api.BatchResponse, error) {
	body, err := json.Marshal(api.BatchRequest{Interventions: items})
	if err != nil {
		return nil, err
	}

	var out api.BatchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/interventions/sync", bytes.NewReader(body), "application/json", true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadPhotos posts files as one multipart request attached to the
// intervention with server id interventionID.
func (c *HTTPClient) UploadPhotos(ctx context.Context, interventionID, photoType string, files []models.File) ([]api.Photo, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("interventionId", interventionID); err != nil {
		return nil, err
	}
	if photoType != "" {
		if err := mw.WriteField("photoType", photoType); err != nil {
			return nil, err
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile("photos", f.Name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out api.PhotosResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/interventions/photos", &buf, mw.FormDataContentType(), true, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *HTTPClient) GetIntervention(ctx context.Context, localID string) (*api.Intervention, error) {
	var out api.InterventionResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/interventions/"+url.PathEscape(localID), nil, "", true, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, auth bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if auth {
		token, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("read access token: %w", err)
		}
		if token == "" {
			return fmt.Errorf("%w: not logged in", ErrUnauthorized)
		}
		req.Header.Set(common.AuthorizationHeader, "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return mapError(err)
	}
	defer resp.Body.Close()

	if err := netx.CheckResponse(resp); err != nil {
		return mapError(err)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return mapError(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// mapError converts transport failures and status codes to the package's
// sentinel errors.
func mapError(err error) error {
	var se *netx.StatusError
	if errors.As(err, &se) {
		msg := errorMessage(se)
		switch {
		case se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		case se.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", common.ErrNotFound, msg)
		case se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests || se.StatusCode == http.StatusRequestTimeout:
			return fmt.Errorf("%w: %s", ErrUnavailable, se.Error())
		default:
			return fmt.Errorf("%w: %s", ErrRejected, msg)
		}
	}
	if netx.IsUnreachable(err) {
		return fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
	}
	return err
}

// errorMessage prefers the server's error message over the raw body.
func errorMessage(se *netx.StatusError) string {
	var er api.ErrorResponse
	if json.Unmarshal([]byte(se.Body), &er) == nil && er.Error.Message != "" {
		return er.Error.Message
	}
	return se.Error()
}
