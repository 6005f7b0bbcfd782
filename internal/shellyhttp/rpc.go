package shellyhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-shelly/internal/shelly"
)

// maxResponseSize bounds device response bodies (1MB).
const maxResponseSize = 1 << 20

// rpcRequest is the JSON-RPC request envelope RPC devices accept.
type rpcRequest struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Auth   any    `json:"auth,omitempty"`
}

// rpcResponse is the JSON-RPC response envelope.
type rpcResponse struct {
	ID     int            `json:"id"`
	Result map[string]any `json:"result"`
	Error  *rpcError      `json:"error"`
}

// rpcError is the in-band RPC error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPC error codes the client reacts to.
const (
	rpcCodeUnauthorized = 401
)

// refreshRPC fetches Shelly.GetStatus from an RPC device.
func (c *Client) refreshRPC(ctx context.Context) (*shelly.Snapshot, error) {
	result, err := c.rpcCall(ctx, "Shelly.GetStatus")
	if err != nil {
		return nil, err
	}
	return rpcSnapshot(result), nil
}

// rpcCall posts one JSON-RPC method to the device /rpc endpoint.
func (c *Client) rpcCall(ctx context.Context, method string) (map[string]any, error) {
	body, err := json.Marshal(rpcRequest{ID: 1, Method: method})
	if err != nil {
		return nil, fmt.Errorf("marshalling rpc request: %w", err)
	}

	url := fmt.Sprintf("http://%s/rpc", c.host)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
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

	var envelope rpcResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: decoding rpc response: %v", shelly.ErrConnection, err)
	}

	if envelope.Error != nil {
		if envelope.Error.Code == rpcCodeUnauthorized {
			return nil, fmt.Errorf("%w: %s", shelly.ErrInvalidAuth, envelope.Error.Message)
		}
		return nil, fmt.Errorf("rpc %s: %d %s", method, envelope.Error.Code, envelope.Error.Message)
	}

	return envelope.Result, nil
}

// rpcSnapshot maps a Shelly.GetStatus result onto a snapshot.
func rpcSnapshot(result map[string]any) *shelly.Snapshot {
	snap := &shelly.Snapshot{
		Payload:     result,
		Taken:       time.Now(),
		DeviceClass: rpcDeviceClass(result),
	}

	if sys, ok := result["sys"].(map[string]any); ok {
		snap.CfgRevision = asInt64(sys["cfg_rev"])
		snap.WakeupPeriod = int(asInt64(sys["wakeup_period"]))
		if fw, ok := sys["fw_id"].(string); ok {
			snap.Firmware = fw
		}
	}

	if light, ok := result["rgbw:0"].(map[string]any); ok {
		snap.ColorMode, _ = light["mode"].(string)
		snap.Effect = int(asInt64(light["effect"]))
	}

	return snap
}

// rpcDeviceClass derives the presented entity class from the status
// component keys.
func rpcDeviceClass(result map[string]any) string {
	for _, key := range []string{"cover:0", "light:0", "rgbw:0", "switch:0"} {
		if _, ok := result[key]; ok {
			switch key {
			case "cover:0":
				return "cover"
			case "light:0", "rgbw:0":
				return "light"
			default:
				return "switch"
			}
		}
	}
	return "sensor"
}

// checkStatus maps HTTP-level failures onto the domain sentinels.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: http 401", shelly.ErrInvalidAuth)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: http %d", shelly.ErrConnection, resp.StatusCode)
	}
	return nil
}
