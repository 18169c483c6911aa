package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/runslikebutter/doorphone/internal/call"
)

const callStatusBody = `{
	"data": {
		"id": "status-1",
		"type": "call_statuses",
		"attributes": {"status": "initializing", "multiple_devices": true, "created_at": "2024-05-01T10:00:00Z"}
	},
	"included": [{
		"id": "call-1",
		"type": "calls",
		"attributes": {
			"guid": "GUID-abc",
			"call_type": "mobile",
			"notification_type": "visitor",
			"panel_name": "Lobby",
			"panel_id": 12,
			"provider": "twilio",
			"status": "stale",
			"display_status": "Incoming call"
		}
	}]
}`

func TestGetCallStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/me/calls/GUID-abc/status" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, callStatusBody)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticTokenSource("token-1"), time.Second)

	got, err := c.GetCallStatus(context.Background(), "GUID-abc")
	if err != nil {
		t.Fatalf("GetCallStatus() error = %v", err)
	}

	if got.GUID() != "GUID-abc" {
		t.Errorf("GUID = %q", got.GUID())
	}
	if got.Provider() != call.ProviderTwilio {
		t.Errorf("Provider = %v", got.Provider())
	}
	if got.PanelID() != 12 {
		t.Errorf("PanelID = %d", got.PanelID())
	}
	// The authoritative status is the top-level one, not the stale copy
	// inside the call resource.
	if got.RawStatus() != "initializing" {
		t.Errorf("RawStatus = %q, want %q", got.RawStatus(), "initializing")
	}
	if got.Attributes.PanelName != "Lobby" {
		t.Errorf("PanelName = %q", got.Attributes.PanelName)
	}
}

func TestGetCallStatusEmptyGUID(t *testing.T) {
	c := NewClient("http://unused", StaticTokenSource("t"), time.Second)

	_, err := c.GetCallStatus(context.Background(), "")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want RequestError", err)
	}
}

func TestGetCallStatusUnsupportedProvider(t *testing.T) {
	body := `{"data":{"attributes":{"status":"initializing"}},"included":[{"attributes":{"guid":"g","panel_id":1,"provider":"skype"}}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticTokenSource("t"), time.Second)

	_, err := c.GetCallStatus(context.Background(), "g")
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("error = %v, want ErrUnsupportedProvider", err)
	}
}

func TestGetCallStatusServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticTokenSource("t"), time.Second)

	_, err := c.GetCallStatus(context.Background(), "g")
	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("error = %v, want ResponseError", err)
	}
}

func TestGetProviderTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}
		if r.URL.Path != "/v3/me/calls/call-1/token" {
			t.Errorf("path = %q", r.URL.Path)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		data := req["data"].(map[string]any)
		attrs := data["attributes"].(map[string]any)
		if attrs["device_uuid"] != "device-9" {
			t.Errorf("device_uuid = %v", attrs["device_uuid"])
		}

		fmt.Fprint(w, `{"tokens":{"twilio":"tw-token"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticTokenSource("t"), time.Second)

	tokens, err := c.GetProviderTokens(context.Background(), "call-1", "device-9")
	if err != nil {
		t.Fatalf("GetProviderTokens() error = %v", err)
	}
	if tokens["twilio"] != "tw-token" {
		t.Errorf("tokens = %v", tokens)
	}
}

func TestGetProviderTokensMissingDevice(t *testing.T) {
	c := NewClient("http://unused", StaticTokenSource("t"), time.Second)

	_, err := c.GetProviderTokens(context.Background(), "call-1", "")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want RequestError", err)
	}
}

func TestOpenDoor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}
		if r.URL.Path != "/v3/me/open_door" {
			t.Errorf("path = %q", r.URL.Path)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		data := req["data"].(map[string]any)
		if data["type"] != "door_release_requests" {
			t.Errorf("type = %v", data["type"])
		}
		attrs := data["attributes"].(map[string]any)
		if attrs["release_method"] != "numberpad" {
			t.Errorf("release_method = %v", attrs["release_method"])
		}
		rels := data["relationships"].(map[string]any)
		panel := rels["panel"].(map[string]any)["data"].(map[string]any)
		if panel["id"] != "panel-7" {
			t.Errorf("panel id = %v", panel["id"])
		}
		unit := rels["unit"].(map[string]any)["data"].(map[string]any)
		if unit["id"] != "unit-3" {
			t.Errorf("unit id = %v", unit["id"])
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticTokenSource("t"), time.Second)

	if err := c.OpenDoor(context.Background(), "panel-7", "unit-3", ReleaseMethodNumberpad); err != nil {
		t.Fatalf("OpenDoor() error = %v", err)
	}

	var reqErr *RequestError
	if err := c.OpenDoor(context.Background(), "", "unit-3", ReleaseMethodNumberpad); !errors.As(err, &reqErr) {
		t.Errorf("empty panel: error = %v, want RequestError", err)
	}
	if err := c.OpenDoor(context.Background(), "panel-7", "", ReleaseMethodNumberpad); !errors.As(err, &reqErr) {
		t.Errorf("empty unit: error = %v, want RequestError", err)
	}
}

func TestNotifierOpenDoorCompletion(t *testing.T) {
	var kinds []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kinds = append(kinds, r.URL.Path)
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		data := req["data"].(map[string]any)
		if data["type"] != "notifications" {
			t.Errorf("type = %v", data["type"])
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(NewClient(srv.URL, StaticTokenSource("t"), time.Second))

	var outcome *bool
	n.SendOpenDoor(context.Background(), "g", 3, func(ok bool) { outcome = &ok })
	if outcome == nil || !*outcome {
		t.Error("SendOpenDoor completion should report success")
	}

	if err := n.SendCallAccepted(context.Background(), "g", 3, false, true); err != nil {
		t.Errorf("SendCallAccepted error = %v", err)
	}

	want := []string{"/v3/notifications/open_door", "/v3/notifications/call_accepted"}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %q, want %q", i, kinds[i], want[i])
		}
	}
}

func TestNotifierOpenDoorFailureCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewNotifier(NewClient(srv.URL, StaticTokenSource("t"), time.Second))

	var outcome *bool
	n.SendOpenDoor(context.Background(), "g", 3, func(ok bool) { outcome = &ok })
	if outcome == nil || *outcome {
		t.Error("SendOpenDoor completion should report failure")
	}
}

func makeJWT(exp time.Time) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"exp":%d}`, exp.Unix())))
	return header + "." + payload + "."
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()

	if TokenExpired(makeJWT(now.Add(time.Hour)), now) {
		t.Error("token expiring in an hour reported expired")
	}
	if !TokenExpired(makeJWT(now.Add(-time.Hour)), now) {
		t.Error("token expired an hour ago reported valid")
	}
	if TokenExpired("not-a-jwt", now) {
		t.Error("opaque token should be assumed valid")
	}
}
