package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"breedserve/internal/apperr"
	"breedserve/pkg/types"
)

// maxResponseBytes caps what the client reads from any host response.
const maxResponseBytes = 1 << 20

// RemoteClient calls an inference host over HTTP.
type RemoteClient struct {
	base string
	hc   *http.Client
}

// NewRemoteClient builds a client for the host at baseURL. hc may be nil.
func NewRemoteClient(baseURL string, hc *http.Client) *RemoteClient {
	if hc == nil {
		hc = &http.Client{}
	}
	return &RemoteClient{base: strings.TrimRight(baseURL, "/"), hc: hc}
}

// BaseURL returns the host address.
func (c *RemoteClient) BaseURL() string { return c.base }

// Health calls GET /health. Any decodable 200 counts as reachable, whatever
// the model state.
func (c *RemoteClient) Health(ctx context.Context) (types.HealthResponse, error) {
	var h types.HealthResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return h, apperr.Wrap(apperr.BackendUnreachable, err, "build health request")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return h, apperr.Wrap(apperr.BackendUnreachable, err, "health %s", c.base)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return h, apperr.New(apperr.BackendUnreachable, "health %s: status %d", c.base, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&h); err != nil {
		return h, apperr.Wrap(apperr.BackendUnreachable, err, "decode health")
	}
	return h, nil
}

// PredictBreed posts the image to /predict.
func (c *RemoteClient) PredictBreed(ctx context.Context, img []byte) (types.PredictResponse, error) {
	var out types.PredictResponse
	err := c.postImage(ctx, "/predict", img, &out)
	return out, err
}

// DetectSpecies posts the image to /species. Hosts without the route yield
// ErrNoSpeciesEndpoint.
func (c *RemoteClient) DetectSpecies(ctx context.Context, img []byte) (types.SpeciesResult, error) {
	var out types.SpeciesResult
	err := c.postImage(ctx, "/species", img, &out)
	var he *httpStatusError
	if errors.As(err, &he) && (he.code == http.StatusNotFound || he.code == http.StatusMethodNotAllowed) {
		return out, ErrNoSpeciesEndpoint
	}
	return out, err
}

type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func (c *RemoteClient) postImage(ctx context.Context, path string, img []byte, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "image.jpg")
	if err != nil {
		return err
	}
	if _, err := fw.Write(img); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &buf)
	if err != nil {
		return apperr.Wrap(apperr.BackendUnreachable, err, "build request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperr.Wrap(apperr.BackendUnreachable, ctx.Err(), "%s %s", path, c.base)
		}
		return apperr.Wrap(apperr.BackendUnreachable, err, "%s %s", path, c.base)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperr.Wrap(apperr.BackendUnreachable, err, "read %s response", path)
	}
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Wrap(apperr.InferenceFailure, err, "decode %s response", path)
	}
	return nil
}

// decodeError turns a non-200 host response into a classified error. The
// host's kind wins; otherwise the status code and coarse status decide.
func decodeError(resp *http.Response, body []byte) error {
	var er types.ErrorResponse
	_ = json.Unmarshal(body, &er)
	msg := er.Error
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	e := &apperr.Error{
		Kind:    apperr.Kind(er.Kind),
		Message: msg,
		Err:     &httpStatusError{code: resp.StatusCode, body: msg},
	}
	if er.RetryAfterSeconds > 0 {
		e.RetryAfter = time.Duration(er.RetryAfterSeconds) * time.Second
	} else if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
		e.RetryAfter = time.Duration(s) * time.Second
	}
	if e.Kind == "" {
		e.Kind = kindForStatus(resp.StatusCode, er.Status)
	}
	return e
}

func kindForStatus(code int, status string) apperr.Kind {
	switch code {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return apperr.InvalidInput
	case http.StatusTooManyRequests:
		return apperr.Busy
	case http.StatusServiceUnavailable:
		switch status {
		case "loading", "not_loaded":
			return apperr.ModelNotReady
		case "error":
			return apperr.ModelFailed
		}
		return apperr.BackendUnreachable
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusBadGateway, http.StatusGatewayTimeout:
		return apperr.BackendUnreachable
	}
	return apperr.InferenceFailure
}
