package modbus

import "errors"

// Domain errors for the Modbus bridge.
var (
	// ErrInvalidAddress is returned when a modbus:// address cannot be parsed.
	ErrInvalidAddress = errors.New("modbus: invalid address")

	// ErrUnsupportedDataType is returned for a data type the decoder does not know.
	ErrUnsupportedDataType = errors.New("modbus: unsupported data type")

	// ErrShortResponse is returned when the device returns fewer bytes than the data type needs.
	ErrShortResponse = errors.New("modbus: short response")
)
