package provision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr1hm/go-panic-alerts/internal/config"
)

func TestRegisterDevice(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewTTSClient(config.TTSConfig{
		BaseURL:       srv.URL,
		APIKey:        "secret-key",
		ApplicationID: "panic-buttons",
	})

	err := client.RegisterDevice(context.Background(), DeviceRegistration{
		DeviceID: "device123",
		DevEUI:   "70B3D57ED0072E7F",
		JoinEUI:  "0000000000000001",
	})
	if err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}

	if gotPath != "/api/v3/applications/panic-buttons/devices" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("unexpected authorization %q", gotAuth)
	}

	endDevice, ok := gotBody["end_device"].(map[string]any)
	if !ok {
		t.Fatalf("missing end_device in body: %v", gotBody)
	}
	ids := endDevice["ids"].(map[string]any)
	if ids["dev_eui"] != "70B3D57ED0072E7F" || ids["device_id"] != "device123" {
		t.Errorf("unexpected ids: %v", ids)
	}
}

func TestRegisterDevice_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "device already exists", http.StatusConflict)
	}))
	defer srv.Close()

	client := NewTTSClient(config.TTSConfig{BaseURL: srv.URL, ApplicationID: "app"})

	err := client.RegisterDevice(context.Background(), DeviceRegistration{
		DeviceID: "device123",
		DevEUI:   "70B3D57ED0072E7F",
	})
	if err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}
