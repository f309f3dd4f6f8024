// Package decoder turns raw LoRaWAN uplink webhook bodies into normalized
// device readings. The network provider sends an arbitrarily-shaped JSON
// envelope; two strategies are tried in order:
//
//  1. uplink_message.frm_payload: base64-encoded JSON written by the device
//     firmware, containing GPS "lat,lon" and a Battery number.
//  2. provider-decoded fields: uplink_message.decoded_payload and
//     uplink_message.locations.user, used when the custom payload is absent
//     or unparsable.
package decoder

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/go-panic-alerts/internal/models"
)

// ErrIncomplete marks readings that are missing the device identifier, a
// valid coordinate pair or the battery level. Such readings never reach the
// lifecycle engine.
var ErrIncomplete = errors.New("incomplete or invalid reading")

// Reading is a normalized panic-button uplink.
type Reading struct {
	DeviceEUI    string
	DeviceID     string
	Latitude     float64
	Longitude    float64
	BatteryLevel float64
	Timestamp    time.Time
}

type envelope struct {
	EndDeviceIDs struct {
		DevEUI   string `json:"dev_eui"`
		DeviceID string `json:"device_id"`
	} `json:"end_device_ids"`
	UplinkMessage struct {
		FrmPayload     string `json:"frm_payload"`
		DecodedPayload struct {
			Battery  *float64 `json:"battery"`
			Location *struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"location"`
		} `json:"decoded_payload"`
		Locations map[string]struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"locations"`
	} `json:"uplink_message"`
	ReceivedAt string `json:"received_at"`
}

// customPayload is the device firmware's own encoding inside frm_payload.
type customPayload struct {
	GPS     string      `json:"GPS"`
	Battery json.Number `json:"Battery"`
}

// Decode parses a webhook body into a Reading. receivedAt is used as the
// reading timestamp when the envelope carries no parsable received_at.
// The returned error wraps ErrIncomplete when mandatory fields could not be
// extracted by either strategy.
func Decode(raw []byte, receivedAt time.Time) (*Reading, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: unparsable body: %v", ErrIncomplete, err)
	}

	r := &Reading{
		DeviceEUI: env.EndDeviceIDs.DevEUI,
		DeviceID:  env.EndDeviceIDs.DeviceID,
		Timestamp: receivedAt,
	}
	if env.ReceivedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, env.ReceivedAt); err == nil {
			r.Timestamp = ts
		}
	}

	var haveFix, haveBattery bool

	// Strategy 1: custom base64 payload. Parse failures fall through to the
	// provider-decoded fields rather than failing the request.
	if lat, lon, battery, ok := decodeCustomPayload(env.UplinkMessage.FrmPayload); ok {
		if models.ValidCoordinates(lat, lon) {
			r.Latitude, r.Longitude = lat, lon
			haveFix = true
		}
		if battery != nil {
			r.BatteryLevel = *battery
			haveBattery = true
		}
	}

	// Strategy 2: provider-decoded payload and location solver output.
	if !haveBattery && env.UplinkMessage.DecodedPayload.Battery != nil {
		r.BatteryLevel = *env.UplinkMessage.DecodedPayload.Battery
		haveBattery = true
	}
	if !haveFix {
		if loc := env.UplinkMessage.DecodedPayload.Location; loc != nil && models.ValidCoordinates(loc.Latitude, loc.Longitude) {
			r.Latitude, r.Longitude = loc.Latitude, loc.Longitude
			haveFix = true
		}
	}
	if !haveFix {
		if user, ok := env.UplinkMessage.Locations["user"]; ok && models.ValidCoordinates(user.Latitude, user.Longitude) {
			r.Latitude, r.Longitude = user.Latitude, user.Longitude
			haveFix = true
		}
	}

	switch {
	case r.DeviceEUI == "":
		return nil, fmt.Errorf("%w: missing dev_eui", ErrIncomplete)
	case !haveFix:
		return nil, fmt.Errorf("%w: no valid coordinate pair", ErrIncomplete)
	case !haveBattery || r.BatteryLevel == 0:
		return nil, fmt.Errorf("%w: missing battery level", ErrIncomplete)
	case r.BatteryLevel < 0 || r.BatteryLevel > 100:
		return nil, fmt.Errorf("%w: battery level out of range: %v", ErrIncomplete, r.BatteryLevel)
	}

	return r, nil
}

// decodeCustomPayload extracts coordinates and battery from the device's
// base64 JSON payload. ok is false when the field is absent or unparsable.
func decodeCustomPayload(frmPayload string) (lat, lon float64, battery *float64, ok bool) {
	if frmPayload == "" {
		return 0, 0, nil, false
	}

	decoded, err := base64.StdEncoding.DecodeString(frmPayload)
	if err != nil {
		return 0, 0, nil, false
	}

	var p customPayload
	if err := json.Unmarshal(decoded, &p); err != nil {
		return 0, 0, nil, false
	}

	if p.GPS != "" {
		parts := strings.Split(p.GPS, ",")
		if len(parts) == 2 {
			latVal, latErr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			lonVal, lonErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if latErr == nil && lonErr == nil {
				lat, lon = latVal, lonVal
			}
		}
	}

	if p.Battery != "" {
		if b, err := p.Battery.Float64(); err == nil {
			battery = &b
		}
	}

	return lat, lon, battery, true
}
