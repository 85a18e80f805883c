package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lance13c/portalwatch/internal/logging"
)

// ChromeVersion is the DevTools /json/version document.
type ChromeVersion struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// ResolveRemote turns a DevTools endpoint into a browser WebSocket URL and
// verifies it accepts a handshake. endpoint may be ws(s)://…, http(s)://host:port
// or a bare host:port.
func ResolveRemote(ctx context.Context, endpoint string) (string, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid remote endpoint %q: %w", endpoint, err)
	}

	wsURL := endpoint
	if u.Scheme == "http" || u.Scheme == "https" {
		version, err := GetChromeVersion(ctx, u.Scheme+"://"+u.Host)
		if err != nil {
			return "", err
		}
		if version.WebSocketDebuggerURL == "" {
			return "", fmt.Errorf("remote Chrome at %s did not report a debugger URL", u.Host)
		}
		wsURL = version.WebSocketDebuggerURL
		logging.Debug("Remote endpoint %s is %s", u.Host, version.Browser)
	}

	if err := ProbeWebSocket(ctx, wsURL); err != nil {
		return "", err
	}
	return wsURL, nil
}

// GetChromeVersion fetches /json/version from a DevTools HTTP endpoint.
func GetChromeVersion(ctx context.Context, base string) (*ChromeVersion, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, strings.TrimRight(base, "/")+"/json/version", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Chrome DevTools: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Chrome DevTools returned %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var version ChromeVersion
	if err := json.Unmarshal(body, &version); err != nil {
		return nil, fmt.Errorf("failed to parse version info: %w", err)
	}
	return &version, nil
}

// ProbeWebSocket opens and immediately closes a DevTools WebSocket.
func ProbeWebSocket(ctx context.Context, wsURL string) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, httpResp, err := dialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		if httpResp != nil {
			return fmt.Errorf("failed to connect to WebSocket %s (status %d): %w", wsURL, httpResp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to WebSocket %s: %w", wsURL, err)
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}
