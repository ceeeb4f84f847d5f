// Package fetch runs one fetch cycle: close the open interval on every
// meter, persist what came back and hand the readings to the mirrors.
//
// A cycle never fails as a whole. A meter that errors, times out or has
// nothing to close is absent from the cycle and logged; a storage failure
// is logged with the affected meter IDs and not retried. Mirrors
// (InfluxDB, VictoriaMetrics, MQTT, Kafka) run after storage and their
// failures never reach the database path.
//
// Every cycle carries a UUID that is attached to all of its log lines as
// cycle_id and travels with the CycleResult to the mirrors.
package fetch
