package tsdb

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Nussi649/ShellyManager/internal/meter"
)

// intervalLine formats one closed measurement interval, stamped with the
// interval start so consecutive intervals line up on the time axis.
func intervalLine(r meter.Reading) string {
	fields := map[string]interface{}{
		"consumption_wh": r.ConsumptionWh,
		"length_seconds": r.IntervalLength,
	}
	if r.IntervalLength > 0 {
		fields["avg_power_watts"] = r.ConsumptionWh * 3600 / float64(r.IntervalLength)
	}
	return formatLineProtocol(
		"energy_interval",
		map[string]string{
			"meter":    r.MeterName,
			"meter_id": strconv.FormatInt(r.MeterID, 10),
		},
		fields,
		r.Start,
	)
}

// cycleLine formats the outcome counts of one fetch cycle.
func cycleLine(cycleID string, at time.Time, ok, absent int, totalWh float64) string {
	return formatLineProtocol(
		"fetch_cycle",
		nil,
		map[string]interface{}{
			"cycle_id": cycleID,
			"ok":       ok,
			"absent":   absent,
			"total_wh": totalWh,
		},
		at,
	)
}

// formatLineProtocol formats a data point as an InfluxDB line protocol string.
//
// Format: measurement,tag1=val1,tag2=val2 field1=val1,field2=val2 timestamp_ns
//
// Tags and fields are sorted so output is deterministic.
func formatLineProtocol(measurement string, tags map[string]string, fields map[string]interface{}, t time.Time) string {
	var b strings.Builder
	b.WriteString(escapeMeasurement(measurement))

	for _, k := range sortedKeys(tags) {
		b.WriteByte(',')
		b.WriteString(escapeTag(k))
		b.WriteByte('=')
		b.WriteString(escapeTag(tags[k]))
	}

	b.WriteByte(' ')
	for i, k := range sortedKeys(fields) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escapeTag(k))
		b.WriteByte('=')
		b.WriteString(formatField(fields[k]))
	}

	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(t.UnixNano(), 10))
	return b.String()
}

func formatField(v interface{}) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val) + "i"
	case int64:
		return strconv.FormatInt(val, 10) + "i"
	case bool:
		return strconv.FormatBool(val)
	case string:
		return strconv.Quote(val)
	default:
		return strconv.Quote("")
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// escapeTag escapes commas, equals signs and spaces in tag keys/values.
// Newlines are stripped to prevent line protocol injection.
func escapeTag(s string) string {
	return tagEscaper.Replace(s)
}

// escapeMeasurement escapes commas and spaces in measurement names.
func escapeMeasurement(s string) string {
	return measurementEscaper.Replace(s)
}

var (
	tagEscaper = strings.NewReplacer(
		"\n", "", "\r", "",
		" ", `\ `, ",", `\,`, "=", `\=`,
	)
	measurementEscaper = strings.NewReplacer(
		"\n", "", "\r", "",
		" ", `\ `, ",", `\,`,
	)
)
