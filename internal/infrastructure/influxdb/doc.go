// Package influxdb mirrors fetch cycles to InfluxDB v2.
//
// It wraps the official influxdb-client-go library. After a cycle has been
// stored in SQLite, each reading is written as an energy_interval point and
// the cycle itself as a fetch_cycle point, so dashboards can chart
// consumption without touching the primary database.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // mirror off
//	}
//	defer client.Close()
//
//	err = client.WriteCycle(ctx, res.ID, res.FinishedAt, res.Readings, len(res.Absent))
//
// Writes are synchronous. ErrUnreachable and ErrReadingsRejected tell a
// network failure apart from a server refusal.
package influxdb
