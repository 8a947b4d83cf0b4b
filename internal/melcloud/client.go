package melcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// familyClient is the per-family wire contract. Both variants have the
// same shape; the unified client dispatches on the device family.
type familyClient interface {
	family() Family
	writePath() string
	schema() []string
	wireField(field string) (string, bool)
	parseState(raw map[string]json.RawMessage) (map[string]any, map[string]bool)
}

// Client is the unified MELCloud API client covering both device
// families. It depends on a SessionManager for authentication but never
// performs a login itself: a request that fails authorization surfaces
// ErrSessionExpired and the policy layer decides what to do.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	session    *SessionManager
	families   map[Family]familyClient
	logger     Logger
}

// ClientConfig holds the settings needed to construct a Client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a unified client for both device families.
func NewClient(cfg ClientConfig, session *SessionManager) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		session:    session,
		families: map[Family]familyClient{
			FamilyATA: ataClient{},
			FamilyATW: atwClient{},
		},
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Schema returns the settable field names for a device family.
func (c *Client) Schema(family Family) ([]string, error) {
	fc, ok := c.families[family]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}
	return fc.schema(), nil
}

// FetchState fetches the combined snapshot of every device on the
// account, both families, in a single round trip. The vendor API
// intentionally returns one combined snapshot; splitting it into
// per-family calls would double the request load for nothing.
func (c *Client) FetchState(ctx context.Context) (*UserContext, error) {
	var buildings []wireBuilding
	if err := c.get(ctx, "/User/ListDevices", &buildings); err != nil {
		return nil, err
	}

	uc := &UserContext{FetchedAt: time.Now()}
	for i := range buildings {
		for _, wd := range buildings[i].allDevices() {
			family, ok := wireDeviceTypes[wd.Type]
			if !ok {
				c.logger.Warn("skipping device with unknown type",
					"device_id", wd.DeviceID,
					"type", wd.Type,
				)
				continue
			}
			fc := c.families[family]
			state, caps := fc.parseState(wd.Device)

			dev := Device{
				ID:           wd.DeviceID,
				BuildingID:   wd.BuildingID,
				Name:         wd.DeviceName,
				Family:       family,
				State:        state,
				Capabilities: caps,
			}
			if ts := rawString(wd.Device, "LastTimeStamp"); ts != "" {
				if t, err := parseVendorTime(ts); err == nil {
					dev.LastCommunication = t
				}
			}
			uc.Devices = append(uc.Devices, dev)
		}
	}
	return uc, nil
}

// SendUpdate writes a sparse patch to one device.
//
// changes maps normalised field names to target values. The request body
// always carries the family's full settable schema: changed fields get
// their literal values, all other fields get the explicit null sentinel.
// The endpoint treats null as "leave unchanged" and any other value,
// including zero and false, as a literal write, so omitting a field and
// sending null must never be confused.
func (c *Client) SendUpdate(ctx context.Context, deviceID string, family Family, changes map[string]any) error {
	fc, ok := c.families[family]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}

	for field := range changes {
		if _, ok := fc.wireField(field); !ok {
			return fmt.Errorf("%w: %q for family %q", ErrUnknownField, field, family)
		}
	}

	body := map[string]any{
		"DeviceID": deviceID,
	}
	for _, field := range fc.schema() {
		wire, _ := fc.wireField(field)
		if v, changed := changes[field]; changed {
			body[wire] = v
		} else {
			// Explicit no-op sentinel; see method doc.
			body[wire] = nil
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encoding update: %w", ErrAPI, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.baseURL+fc.writePath(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: building update request: %w", ErrAPI, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // Drain for connection reuse

	return nil
}

// telemetryResponse is the wire shape of the report endpoint.
type telemetryResponse struct {
	Measure   string `json:"Measure"`
	Available bool   `json:"Available"`
	Points    []struct {
		Time  string  `json:"Time"`
		Value float64 `json:"Value"`
	} `json:"Points"`
}

// FetchTelemetry fetches one telemetry series for a device over a time
// range. Returns ErrSeriesUnavailable when the device structurally
// lacks the series; the sync loop uses this for its one-time capability
// probe.
func (c *Client) FetchTelemetry(ctx context.Context, deviceID string, measure Measure, from, to time.Time) ([]Sample, error) {
	// Device IDs come straight from the vendor payload; escape them
	// rather than trusting they are query-safe.
	query := url.Values{}
	query.Set("deviceId", deviceID)
	query.Set("measure", string(measure))
	query.Set("from", from.UTC().Format(time.RFC3339))
	query.Set("to", to.UTC().Format(time.RFC3339))
	path := "/Device/Report?" + query.Encode()

	var tr telemetryResponse
	if err := c.get(ctx, path, &tr); err != nil {
		return nil, err
	}
	if !tr.Available {
		return nil, fmt.Errorf("%w: %s for device %s", ErrSeriesUnavailable, measure, deviceID)
	}

	samples := make([]Sample, 0, len(tr.Points))
	for _, p := range tr.Points {
		t, err := parseVendorTime(p.Time)
		if err != nil {
			c.logger.Warn("skipping unparseable telemetry point",
				"device_id", deviceID,
				"time", p.Time,
			)
			continue
		}
		samples = append(samples, Sample{Time: t, Value: p.Value})
	}
	return samples, nil
}

// get performs an authenticated GET and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrAPI, err)
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrAPI, err)
	}
	return nil
}

// do authorizes and executes a request, translating authorization
// failures into ErrSessionExpired. On success the caller owns the body.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	if err := c.session.Authorize(req); err != nil {
		// No session at all is equivalent to an expired one for the
		// retry layer: both are cured by EnsureValid.
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrAPI, req.Method, req.URL.Path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, ErrSessionExpired
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s returned status %d", ErrAPI, req.Method, req.URL.Path, resp.StatusCode)
	}
	return resp, nil
}

// rawString decodes a string field from a raw device blob.
func rawString(raw map[string]json.RawMessage, key string) string {
	var v string
	if msg, ok := raw[key]; ok {
		_ = json.Unmarshal(msg, &v) //nolint:errcheck // Absent fields default to zero
	}
	return v
}

// vendorTimeLayouts are the timestamp formats MELCloud is known to emit.
var vendorTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// parseVendorTime parses a MELCloud timestamp, trying known layouts.
func parseVendorTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range vendorTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
