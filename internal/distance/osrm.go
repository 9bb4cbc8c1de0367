package distance

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"context"

	"fieldroute/internal/model"
)

const metersPerMile = 1609.344

// OSRM is a Provider backed by an OSRM-compatible routing HTTP service.
// Transient failures (429, 5xx, network errors) are retried with
// exponential backoff; callers decide what to do when retries are exhausted.
type OSRM struct {
	BaseURL string
	Profile string
	HTTP    *http.Client
}

func NewOSRM(baseURL string) *OSRM {
	return &OSRM{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Profile: "driving",
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string { return fmt.Sprintf("status %d: %s", e.Code, e.Body) }

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

func (o *OSRM) Distance(ctx context.Context, a, b model.GeoPoint) (Result, error) {
	// OSRM takes lng,lat pairs
	url := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=false",
		o.BaseURL, o.Profile, a.Lng, a.Lat, b.Lng, b.Lat)

	resp, err := o.doWithRetry(ctx, url)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	var parsed osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("osrm: decode response: %w", err)
	}
	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		return Result{}, fmt.Errorf("osrm: no route (code=%s)", parsed.Code)
	}
	r := parsed.Routes[0]
	return Result{Miles: r.Distance / metersPerMile, Minutes: r.Duration / 60}, nil
}

func (o *OSRM) doWithRetry(ctx context.Context, url string) (*http.Response, error) {
	const maxAttempts = 4
	backoff := 200 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := o.HTTP.Do(req)
		if err == nil && resp.StatusCode < 400 {
			return resp, nil
		}
		if err == nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			err = &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		lastErr = err

		retry := false
		var he *httpStatusError
		if errors.As(err, &he) {
			switch he.Code {
			case 429, 500, 502, 503, 504:
				retry = true
			}
		}
		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}
		if !retry || attempt == maxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}
