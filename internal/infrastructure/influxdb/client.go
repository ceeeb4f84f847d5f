package influxdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	ihttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/Nussi649/ShellyManager/internal/infrastructure/config"
	"github.com/Nussi649/ShellyManager/internal/meter"
)

const connectTimeout = 10 * time.Second

// Client mirrors fetch cycles to an InfluxDB v2 bucket.
//
// Writes go through the blocking write API: WriteCycle returns once the
// server has answered, so the caller's context bounds the mirror.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking

	// site tags fetch_cycle points so several installations can share a bucket.
	site string
}

// Connect pings the server and prepares the write API for the configured
// org and bucket.
//
// Returns:
//   - *Client: Client ready for WriteCycle
//   - error: ErrDisabled, or ErrUnreachable when the ping fails
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: ping reported unhealthy", ErrUnreachable)
	}

	return &Client{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		site:     cfg.Org,
	}, nil
}

// WriteCycle writes an energy_interval point per reading and one
// fetch_cycle point in a single request.
//
// Parameters:
//   - ctx: Bounds the write
//   - cycleID: Stored in the fetch_cycle point
//   - at: Timestamp of the fetch_cycle point
//   - readings: Closed intervals, each stamped with its start
//   - absent: Number of meters that produced no reading
func (c *Client) WriteCycle(ctx context.Context, cycleID string, at time.Time, readings []meter.Reading, absent int) error {
	points := make([]*write.Point, 0, len(readings)+1)
	var total float64
	for _, r := range readings {
		points = append(points, intervalPoint(r))
		total += r.ConsumptionWh
	}
	points = append(points, cyclePoint(c.site, cycleID, at, len(readings), absent, total))

	if err := c.writeAPI.WritePoint(ctx, points...); err != nil {
		var httpErr *ihttp.Error
		if errors.As(err, &httpErr) && httpErr.StatusCode > 0 {
			return fmt.Errorf("%w: cycle %s: %w", ErrReadingsRejected, cycleID, err)
		}
		return fmt.Errorf("%w: cycle %s: %w", ErrUnreachable, cycleID, err)
	}
	return nil
}

// Close releases the underlying HTTP client. Safe on a nil client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.client.Close()
	return nil
}
