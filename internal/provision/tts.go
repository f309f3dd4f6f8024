// Package provision registers panic-button devices against the LoRaWAN
// network server so their uplinks reach the webhook.
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mr1hm/go-panic-alerts/internal/config"
)

type DeviceRegistration struct {
	DeviceID string
	DevEUI   string
	JoinEUI  string
}

// DeviceService is the network-server provisioning collaborator.
type DeviceService interface {
	RegisterDevice(ctx context.Context, reg DeviceRegistration) error
}

// TTSClient provisions devices on a The Things Stack instance.
type TTSClient struct {
	baseURL       string
	apiKey        string
	applicationID string
	client        *http.Client
}

func NewTTSClient(cfg config.TTSConfig) *TTSClient {
	return &TTSClient{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		applicationID: cfg.ApplicationID,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (t *TTSClient) RegisterDevice(ctx context.Context, reg DeviceRegistration) error {
	body := map[string]any{
		"end_device": map[string]any{
			"ids": map[string]any{
				"device_id": reg.DeviceID,
				"dev_eui":   reg.DevEUI,
				"join_eui":  reg.JoinEUI,
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshaling device registration: %w", err)
	}

	url := fmt.Sprintf("%s/api/v3/applications/%s/devices", t.baseURL, t.applicationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d - body: %s", resp.StatusCode, detail)
	}
	return nil
}
