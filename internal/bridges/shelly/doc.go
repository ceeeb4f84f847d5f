// Package shelly implements the Shelly Gen2 HTTP device family.
//
// A Shelly Gen2 switch (Plus 1PM, Plus Plug S, Pro 4PM, ...) exposes a
// cumulative energy counter through its RPC interface:
//
//	GET http://<host>/rpc/Switch.GetStatus?id=<switch>
//
//	{
//	  "id": 0, "output": true, "apower": 12.4, "voltage": 231.2,
//	  "aenergy": {"total": 10254.3, "by_minute": [...], "minute_ts": 1760781600}
//	}
//
// aenergy.total is the lifetime energy in Wh. aenergy.minute_ts is the
// device clock truncated to the minute, used as the sample time so that
// interval boundaries follow the device rather than the network latency.
//
// # Addresses
//
// The adapter accepts "http://host[:port]", "https://host[:port]" and a
// bare "host[:port]". Any other scheme belongs to another device family
// and SetAddress answers with meter.ErrUnsupportedAddress.
//
// # Authentication
//
// Gen2 devices with authentication enabled answer 401 with a SHA-256
// digest challenge. When a password is configured the client answers the
// challenge once per request.
package shelly
