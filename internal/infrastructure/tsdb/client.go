package tsdb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Nussi649/ShellyManager/internal/infrastructure/config"
	"github.com/Nussi649/ShellyManager/internal/meter"
)

const (
	connectTimeout = 10 * time.Second
	requestTimeout = 5 * time.Second
)

// Client mirrors fetch cycles to VictoriaMetrics.
//
// Each cycle becomes one POST to /write holding an energy_interval line per
// reading and a single fetch_cycle line. There is no buffering: WriteCycle
// returns once VictoriaMetrics has accepted or refused the body.
type Client struct {
	url        string
	httpClient *http.Client
}

// Connect checks /health and returns a client for the configured instance.
//
// Returns:
//   - *Client: Client ready for WriteCycle
//   - error: ErrDisabled, or ErrUnreachable when the health check fails
func Connect(ctx context.Context, cfg config.TSDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	c := &Client{
		url:        strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}

	healthCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(healthCtx, http.MethodGet, c.url+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	status, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: health status %d", ErrUnreachable, status)
	}
	return c, nil
}

// WriteCycle sends the readings of one cycle and its summary point.
//
// Parameters:
//   - ctx: Bounds the POST
//   - cycleID: Stored in the fetch_cycle point
//   - at: Timestamp of the fetch_cycle point
//   - readings: One energy_interval point each, stamped with the interval start
//   - absent: Number of meters that produced no reading
func (c *Client) WriteCycle(ctx context.Context, cycleID string, at time.Time, readings []meter.Reading, absent int) error {
	lines := make([]string, 0, len(readings)+1)
	var total float64
	for _, r := range readings {
		lines = append(lines, intervalLine(r))
		total += r.ConsumptionWh
	}
	lines = append(lines, cycleLine(cycleID, at, len(readings), absent, total))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/write", strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "text/plain")

	status, err := c.do(req)
	if err != nil {
		return fmt.Errorf("%w: cycle %s: %w", ErrUnreachable, cycleID, err)
	}
	if status != http.StatusNoContent && status != http.StatusOK {
		return fmt.Errorf("%w: cycle %s: HTTP %d", ErrReadingsRejected, cycleID, status)
	}
	return nil
}

// Close releases idle connections. Safe on a nil client.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.httpClient.CloseIdleConnections()
	return nil
}

// do sends req and returns the status code after draining the body.
func (c *Client) do(req *http.Request) (int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
