package shellyhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-shelly/internal/shelly"
)

// refreshGen1 fetches /status from a Gen1 REST device.
func (c *Client) refreshGen1(ctx context.Context) (*shelly.Snapshot, error) {
	url := fmt.Sprintf("http://%s/status", c.host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building status request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shelly.ErrConnection, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only body

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decoding status: %v", shelly.ErrConnection, err)
	}

	return gen1Snapshot(payload), nil
}

// gen1Snapshot maps a Gen1 /status document onto a snapshot.
func gen1Snapshot(payload map[string]any) *shelly.Snapshot {
	snap := &shelly.Snapshot{
		Payload:     payload,
		Taken:       time.Now(),
		CfgRevision: asInt64(payload["cfg_changed_cnt"]),
		DeviceClass: gen1DeviceClass(payload),
	}

	if upd, ok := payload["update"].(map[string]any); ok {
		snap.Firmware, _ = upd["old_version"].(string)
	}

	// Battery devices report their wakeup schedule in the sleep_mode
	// block, period in minutes or hours.
	if sm, ok := payload["sleep_mode"].(map[string]any); ok {
		period := int(asInt64(sm["period"]))
		unit, _ := sm["unit"].(string)
		switch unit {
		case "h":
			snap.WakeupPeriod = period * 3600
		default:
			snap.WakeupPeriod = period * 60
		}
	}

	if lights, ok := payload["lights"].([]any); ok && len(lights) > 0 {
		if light, ok := lights[0].(map[string]any); ok {
			snap.ColorMode, _ = light["mode"].(string)
			snap.Effect = int(asInt64(light["effect"]))
		}
	}

	return snap
}

// gen1DeviceClass derives the presented entity class from the status
// components. Rollers win over relays: a roller-mode 2.5 still reports
// its relay blocks.
func gen1DeviceClass(payload map[string]any) string {
	if rollers, ok := payload["rollers"].([]any); ok && len(rollers) > 0 {
		return "cover"
	}
	if lights, ok := payload["lights"].([]any); ok && len(lights) > 0 {
		return "light"
	}
	if relays, ok := payload["relays"].([]any); ok && len(relays) > 0 {
		return "switch"
	}
	return "sensor"
}

// asInt64 coerces a decoded JSON number. Missing or non-numeric values
// yield zero.
func asInt64(v any) int64 {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return int64(f)
}
