package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/andrew-blake/melcloudhome-sub002/internal/auth"
	"github.com/andrew-blake/melcloudhome-sub002/internal/control"
	"github.com/andrew-blake/melcloudhome-sub002/internal/energy"
	"github.com/andrew-blake/melcloudhome-sub002/internal/infrastructure/config"
	"github.com/andrew-blake/melcloudhome-sub002/internal/infrastructure/logging"
	"github.com/andrew-blake/melcloudhome-sub002/internal/melcloud"
	"github.com/andrew-blake/melcloudhome-sub002/internal/poller"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

// fakeSnapshots serves a fixed snapshot.
type fakeSnapshots struct {
	snap poller.Snapshot
}

func (f *fakeSnapshots) Snapshot() poller.Snapshot { return f.snap }

func (f *fakeSnapshots) DeviceState(deviceID string) (melcloud.Device, bool) {
	for _, d := range f.snap.Devices {
		if d.ID == deviceID {
			return d, true
		}
	}
	return melcloud.Device{}, false
}

// fakeCommander records commands and returns a scripted error.
type fakeCommander struct {
	mu       sync.Mutex
	applied  []string
	applyErr error
}

func (c *fakeCommander) Apply(_ context.Context, deviceID, field string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied = append(c.applied, deviceID+"/"+field)
	return c.applyErr
}

// fakeEnergy serves a fixed report.
type fakeEnergy struct {
	reports []energy.DeviceReport
}

func (e *fakeEnergy) Report() []energy.DeviceReport { return e.reports }

// fakeSchemas serves one schema per family.
type fakeSchemas struct{}

func (fakeSchemas) Schema(family melcloud.Family) ([]string, error) {
	if family == melcloud.FamilyATA {
		return []string{melcloud.FieldPower, melcloud.FieldSetTemperature}, nil
	}
	return nil, melcloud.ErrUnknownFamily
}

func testSnapshot() poller.Snapshot {
	return poller.Snapshot{
		Devices: []melcloud.Device{
			{
				ID:     "dev-1",
				Name:   "Living Room",
				Family: melcloud.FamilyATA,
				State: map[string]any{
					melcloud.FieldPower:           true,
					melcloud.FieldSetTemperature:  21.0,
					melcloud.FieldRoomTemperature: 20.5,
				},
				Capabilities: map[string]bool{melcloud.CapEnergyMeter: true},
			},
		},
		FetchedAt: time.Now(),
	}
}

// newTestServer builds the router over fake dependencies and returns an
// httptest server plus a valid bearer token.
func newTestServer(t *testing.T, snaps SnapshotSource, cmd Commander, en EnergySource) (*httptest.Server, string) {
	t.Helper()

	s, err := New(Deps{
		Security:  config.SecurityConfig{JWT: config.JWTConfig{Secret: testJWTSecret}},
		Logger:    logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test"),
		Snapshots: snaps,
		Commands:  cmd,
		Energy:    en,
		Schemas:   fakeSchemas{},
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.hub = NewHub(config.WebSocketConfig{MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 60}, s.logger)

	srv := httptest.NewServer(s.buildRouter())
	t.Cleanup(srv.Close)

	token, err := auth.GenerateToken("test-client", testJWTSecret, 60)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return srv, token
}

func doRequest(t *testing.T, method, url, token string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealth_NoAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSnapshots{snap: testSnapshot()}, &fakeCommander{}, nil)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["devices"] != float64(1) {
		t.Errorf("devices = %v, want 1", body["devices"])
	}
}

func TestHealth_StaleSnapshotDegraded(t *testing.T) {
	snap := testSnapshot()
	snap.Stale = true
	srv, _ := newTestServer(t, &fakeSnapshots{snap: snap}, &fakeCommander{}, nil)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/health", "", nil)
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}

func TestDevices_RequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSnapshots{snap: testSnapshot()}, &fakeCommander{}, nil)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/devices", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/devices", "not-a-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status with bad token = %d, want 401", resp.StatusCode)
	}
}

func TestListDevices(t *testing.T) {
	srv, token := newTestServer(t, &fakeSnapshots{snap: testSnapshot()}, &fakeCommander{}, nil)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/devices", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var snap poller.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(snap.Devices) != 1 || snap.Devices[0].ID != "dev-1" {
		t.Errorf("devices = %+v", snap.Devices)
	}
}

func TestGetDevice(t *testing.T) {
	srv, token := newTestServer(t, &fakeSnapshots{snap: testSnapshot()}, &fakeCommander{}, nil)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/devices/dev-1", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body deviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.ID != "dev-1" {
		t.Errorf("id = %q, want dev-1", body.ID)
	}
	if len(body.SettableFields) != 2 {
		t.Errorf("settable fields = %v, want power and setTemperature", body.SettableFields)
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	srv, token := newTestServer(t, &fakeSnapshots{snap: testSnapshot()}, &fakeCommander{}, nil)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/devices/ghost", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestApplyCommand(t *testing.T) {
	cmd := &fakeCommander{}
	srv, token := newTestServer(t, &fakeSnapshots{snap: testSnapshot()}, cmd, nil)

	body := []byte(`{"field":"setTemperature","value":22.5}`)
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/devices/dev-1/apply", token, body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	if len(cmd.applied) != 1 || cmd.applied[0] != "dev-1/setTemperature" {
		t.Errorf("applied = %v", cmd.applied)
	}
}

func TestApplyCommand_Validation(t *testing.T) {
	cmd := &fakeCommander{}
	srv, token := newTestServer(t, &fakeSnapshots{snap: testSnapshot()}, cmd, nil)

	cases := []struct {
		name string
		body string
	}{
		{"not json", `garbage`},
		{"missing field", `{"value":22.5}`},
		{"missing value", `{"field":"power"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/devices/dev-1/apply", token, []byte(tc.body))
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
	if len(cmd.applied) != 0 {
		t.Errorf("invalid requests dispatched %d commands", len(cmd.applied))
	}
}

func TestApplyCommand_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unknown device", control.ErrUnknownDevice, http.StatusNotFound},
		{"unknown field", melcloud.ErrUnknownField, http.StatusBadRequest},
		{"retry exhausted", control.ErrRetryExhausted, http.StatusBadGateway},
		{"cloud error", melcloud.ErrAPI, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := &fakeCommander{applyErr: tc.err}
			srv, token := newTestServer(t, &fakeSnapshots{snap: testSnapshot()}, cmd, nil)

			body := []byte(`{"field":"power","value":true}`)
			resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/devices/dev-1/apply", token, body)
			if resp.StatusCode != tc.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
		})
	}
}

func TestEnergy(t *testing.T) {
	hour := time.Now().UTC().Truncate(time.Hour)
	en := &fakeEnergy{reports: []energy.DeviceReport{
		{
			DeviceID: "dev-1",
			TotalKWh: 42.5,
			Hours:    []melcloud.HourBucket{{Hour: hour, KWh: 1.5}},
		},
	}}
	srv, token := newTestServer(t, &fakeSnapshots{snap: testSnapshot()}, &fakeCommander{}, en)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/energy", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Devices []energy.DeviceReport `json:"devices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body.Devices) != 1 || body.Devices[0].TotalKWh != 42.5 {
		t.Errorf("devices = %+v", body.Devices)
	}
}

func TestEnergy_Disabled(t *testing.T) {
	srv, token := newTestServer(t, &fakeSnapshots{snap: testSnapshot()}, &fakeCommander{}, nil)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/energy", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
