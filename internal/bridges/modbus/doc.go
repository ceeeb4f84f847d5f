// Package modbus implements the Modbus TCP energy meter family.
//
// Meters such as the Eastron SDM series or Shelly Pro 3EM in Modbus mode
// expose their lifetime energy counter in a pair of registers. The
// register location, function code (holding or input), data type, word
// order and scale to Wh are site-wide settings from the modbus config
// section; the meter address only names the device:
//
//	modbus://10.0.0.9:502/1    unit 1 on port 502
//	modbus://10.0.0.9          default port 502, configured unit id
//
// Each sample opens a short-lived TCP connection. Meters are read once per
// interval, so holding connections open buys nothing and a dead
// connection never needs reconnect handling.
package modbus
