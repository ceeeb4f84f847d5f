package shelly

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Nussi649/ShellyManager/internal/meter"
)

const (
	// defaultUsername is the only user a Gen2 device knows.
	defaultUsername = "admin"

	// maxClockSkew bounds how far the device clock may drift from ours
	// before minute_ts is ignored in favour of the local clock.
	maxClockSkew = 5 * time.Minute

	// maxResponseBytes caps the size of a status response.
	maxResponseBytes = 64 << 10
)

// SwitchStatus is the result of Switch.GetStatus. The same document is
// published on <prefix>/status/switch:N over MQTT.
type SwitchStatus struct {
	ID      int      `json:"id"`
	Source  string   `json:"source,omitempty"`
	Output  *bool    `json:"output,omitempty"`
	APower  *float64 `json:"apower,omitempty"`
	Voltage *float64 `json:"voltage,omitempty"`
	Current *float64 `json:"current,omitempty"`
	AEnergy *Energy  `json:"aenergy,omitempty"`
}

// Energy is the aenergy block of a switch status.
type Energy struct {
	// Total is the lifetime energy in Wh.
	Total    float64   `json:"total"`
	ByMinute []float64 `json:"by_minute,omitempty"`
	MinuteTS int64     `json:"minute_ts"`
}

// DecodeSwitchStatus parses a Switch.GetStatus document.
func DecodeSwitchStatus(data []byte) (*SwitchStatus, error) {
	var st SwitchStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if st.AEnergy == nil {
		return nil, fmt.Errorf("%w: missing aenergy", ErrInvalidResponse)
	}
	return &st, nil
}

// Sample converts the status into a counter sample. The device's
// minute_ts is used as the sample time unless it is missing or further
// than maxClockSkew from now.
func (s SwitchStatus) Sample(now time.Time) (meter.Sample, error) {
	if s.AEnergy == nil {
		return meter.Sample{}, fmt.Errorf("%w: missing aenergy", ErrInvalidResponse)
	}
	at := now
	if s.AEnergy.MinuteTS > 0 {
		deviceTime := time.Unix(s.AEnergy.MinuteTS, 0)
		if skew := now.Sub(deviceTime); skew < maxClockSkew && skew > -maxClockSkew {
			at = deviceTime
		}
	}
	return meter.Sample{Counter: s.AEnergy.Total, At: at}, nil
}

// ParseAddress turns a meter address into the device base URL.
// A bare host is taken as plain HTTP.
func ParseAddress(address string) (*url.URL, error) {
	a := strings.TrimSpace(address)
	if a == "" {
		return nil, ErrInvalidAddress
	}
	if !strings.Contains(a, "://") {
		a = "http://" + a
	}

	u, err := url.Parse(a)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", meter.ErrUnsupportedAddress, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidAddress, address)
	}
	return &url.URL{Scheme: scheme, Host: u.Host}, nil
}

// Client performs RPC calls against one Gen2 device.
type Client struct {
	baseURL  *url.URL
	switchID int
	username string
	password string
	http     *http.Client
}

// NewClient creates a client for the device at baseURL.
func NewClient(baseURL *url.URL, switchID int, username, password string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if username == "" {
		username = defaultUsername
	}
	return &Client{
		baseURL:  baseURL,
		switchID: switchID,
		username: username,
		password: password,
		http:     httpClient,
	}
}

// GetSwitchStatus calls Switch.GetStatus for the configured switch.
func (c *Client) GetSwitchStatus(ctx context.Context) (*SwitchStatus, error) {
	uri := "/rpc/Switch.GetStatus?id=" + strconv.Itoa(c.switchID)

	body, err := c.get(ctx, uri)
	if err != nil {
		return nil, err
	}
	return DecodeSwitchStatus(body)
}

// get issues a GET for uri, answering one digest challenge if the device
// asks for it and a password is configured.
func (c *Client) get(ctx context.Context, uri string) ([]byte, error) {
	resp, err := c.do(ctx, uri, "")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && c.password != "" {
		challenge := resp.Header.Get("WWW-Authenticate")
		drain(resp)

		auth, authErr := digestAuthorization(challenge, c.username, c.password, http.MethodGet, uri)
		if authErr != nil {
			return nil, authErr
		}
		resp, err = c.do(ctx, uri, auth)
		if err != nil {
			return nil, err
		}
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %s returned %d", ErrRequestFailed, uri, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("shelly: reading response: %w", err)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, uri, authorization string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String()+uri, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("shelly: building request: %w", err)
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", meter.ErrDeviceUnavailable, err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close() //nolint:errcheck // best-effort close of a drained body
}
