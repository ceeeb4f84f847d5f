// Package bridges selects the device family for a meter address.
//
// Each family lives in its own sub-package and implements meter.Adapter:
//
//	http://host[:port], host    shelly      Shelly Gen2 RPC over HTTP
//	mqtt://<topic prefix>       shellymqtt  Shelly Gen2 status over MQTT
//	modbus://host[:port][/unit] modbus      Modbus TCP energy meter
//
// NewAdapterFactory returns the meter.AdapterFactory the registry uses.
package bridges
