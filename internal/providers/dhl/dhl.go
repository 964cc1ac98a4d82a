package dhl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"parcelbox/internal/apperr"
	"parcelbox/internal/models"
	"parcelbox/internal/providers"

	"github.com/pkg/errors"
)

const defaultBaseURL = "https://api-eu.dhl.com"

// Client queries the DHL shipment tracking API (track/shipments).
// The API key comes from configuration at construction time, not from the
// environment per call, so tests can inject a fake key and endpoint.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

var _ providers.TrackingProvider = (*Client)(nil)

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// statusByCode maps DHL unified-API event status codes into the normalized
// set. Anything not listed becomes UNKNOWN.
var statusByCode = map[string]models.TrackingStatus{
	"pre-transit": models.TrackingStatusInTransit,
	"transit":     models.TrackingStatusInTransit,
	"delivered":   models.TrackingStatusDelivered,
	"failure":     models.TrackingStatusException,
}

type dhlResponse struct {
	Shipments []struct {
		Events []dhlEvent `json:"events"`
	} `json:"shipments"`
}

type dhlEvent struct {
	Timestamp   string `json:"timestamp"`
	StatusCode  string `json:"statusCode"`
	Description string `json:"description"`
	Location    struct {
		Address struct {
			AddressLocality string `json:"addressLocality"`
		} `json:"address"`
	} `json:"location"`
}

func (c *Client) TrackParcel(ctx context.Context, trackingID string) (models.TrackingInfo, error) {
	if trackingID == "" {
		return models.TrackingInfo{}, errors.Wrap(apperr.ErrInvalid, "trackingId is required")
	}
	if c.apiKey == "" {
		return models.TrackingInfo{}, errors.Wrap(apperr.ErrMissingAPIKey, "dhl")
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return models.TrackingInfo{}, errors.Wrap(err, "parse base url")
	}
	u.Path = "/track/shipments"

	q := u.Query()
	q.Set("trackingNumber", trackingID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.TrackingInfo{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("DHL-API-Key", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.TrackingInfo{}, errors.Wrapf(apperr.ErrNetwork, "dhl request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.TrackingInfo{}, errors.Wrapf(apperr.ErrNetwork, "read dhl response: %v", err)
	}

	if resp.StatusCode/100 != 2 {
		detail := vendorDetail(body)
		slog.Warn("dhl api error", "status", resp.StatusCode, "detail", detail)
		return models.TrackingInfo{}, &apperr.VendorError{StatusCode: resp.StatusCode, Detail: detail}
	}

	var r dhlResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return models.TrackingInfo{}, errors.Wrapf(apperr.ErrBadPayload, "decode dhl response: %v", err)
	}

	// DHL can return several shipments for one tracking number (the same id
	// reused across legs). We take the first, matching the UI which shows a
	// single shipment per parcel.
	if len(r.Shipments) == 0 {
		return models.TrackingInfo{}, nil
	}

	events := make([]models.TrackingEvent, 0, len(r.Shipments[0].Events))
	for _, e := range r.Shipments[0].Events {
		evTime, err := parseEventTime(e.Timestamp)
		if err != nil {
			return models.TrackingInfo{}, errors.Wrapf(apperr.ErrBadPayload, "event timestamp %q", e.Timestamp)
		}
		events = append(events, models.TrackingEvent{
			Status:      normalizeStatus(e.StatusCode),
			Location:    e.Location.Address.AddressLocality,
			Description: e.Description,
			EventTime:   evTime,
		})
	}

	return models.TrackingInfo{Events: events}, nil
}

func normalizeStatus(code string) models.TrackingStatus {
	if st, ok := statusByCode[strings.ToLower(code)]; ok {
		return st
	}
	return models.TrackingStatusUnknown
}

// DHL sends ISO 8601 timestamps, sometimes without a zone offset
// ("2023-05-08T15:30:00"). Zone-less times are taken as UTC.
func parseEventTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format")
}

// vendorDetail extracts the human-readable "detail" field from a DHL error
// body. The field is not guaranteed to be a string (or to exist at all).
func vendorDetail(body []byte) string {
	var eb struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(body, &eb) != nil || eb.Detail == nil {
		return ""
	}
	if s, ok := eb.Detail.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", eb.Detail)
}
