// Package shellymqtt implements the Shelly Gen2 MQTT device family.
//
// A Gen2 device with MQTT enabled publishes its switch status, including
// the aenergy counter, on "<prefix>/status/switch:<id>" whenever it
// changes (at least once a minute while energy is flowing). The adapter
// subscribes to that topic through the shared broker connection and
// keeps the most recent status; intervals are opened and closed on the
// cached counter, so a fetch cycle never waits on the device.
//
// Meter addresses have the form "mqtt://<topic prefix>", for example
// "mqtt://shellies/garage-plug".
//
// The adapter also follows "<prefix>/online", which the device sets to
// "true" on connect and to "false" through its MQTT will. After a "false"
// the device counts as unavailable until it reports "true" again, as does
// a cached sample older than the configured maximum age.
package shellymqtt
