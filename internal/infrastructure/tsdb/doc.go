// Package tsdb mirrors fetch cycles to VictoriaMetrics.
//
// It writes InfluxDB line protocol to the /write endpoint, which
// VictoriaMetrics accepts natively. Two measurements are produced:
// energy_interval (one per reading, stamped with the interval start) and
// fetch_cycle (one per cycle with ok/absent counts and the total Wh).
//
//	client, err := tsdb.Connect(ctx, cfg.TSDB)
//	if errors.Is(err, tsdb.ErrDisabled) {
//	    // mirror off
//	}
//	defer client.Close()
//
//	err = client.WriteCycle(ctx, res.ID, res.FinishedAt, res.Readings, len(res.Absent))
package tsdb
