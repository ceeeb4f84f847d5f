package modbus

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/Nussi649/ShellyManager/internal/infrastructure/config"
)

// Register describes where and how a meter stores its energy counter.
type Register struct {
	Address uint16

	// Type is "holding" or "input".
	Type string

	// DataType is uint16, int16, uint32, int32 or float32.
	DataType string

	// ByteOrder is ABCD, DCBA, BADC or CDAB for 32-bit types.
	ByteOrder string

	// Scale converts the raw value to Wh.
	Scale float64
}

// RegisterFromConfig builds the register layout from the modbus config section.
func RegisterFromConfig(cfg config.ModbusConfig) Register {
	scale := cfg.Scale
	if scale == 0 {
		scale = 1
	}
	return Register{
		Address:   cfg.Register,
		Type:      strings.ToLower(strings.TrimSpace(cfg.RegisterType)),
		DataType:  strings.ToLower(strings.TrimSpace(cfg.DataType)),
		ByteOrder: strings.ToUpper(strings.TrimSpace(cfg.ByteOrder)),
		Scale:     scale,
	}
}

// Quantity is the number of 16-bit registers the data type spans.
func (r Register) Quantity() uint16 {
	switch r.DataType {
	case "uint16", "int16":
		return 1
	default:
		return 2
	}
}

// Decode converts raw register bytes into a scaled counter value in Wh.
func (r Register) Decode(data []byte) (float64, error) {
	need := int(r.Quantity()) * 2
	if len(data) < need {
		return 0, fmt.Errorf("%w: %d bytes for %s", ErrShortResponse, len(data), r.DataType)
	}

	var raw float64
	switch r.DataType {
	case "uint16":
		raw = float64(binary.BigEndian.Uint16(data[:2]))
	case "int16":
		raw = float64(int16(binary.BigEndian.Uint16(data[:2])))
	case "uint32":
		raw = float64(binary.BigEndian.Uint32(reorder32(data[:4], r.ByteOrder)))
	case "int32":
		raw = float64(int32(binary.BigEndian.Uint32(reorder32(data[:4], r.ByteOrder))))
	case "float32":
		raw = float64(math.Float32frombits(binary.BigEndian.Uint32(reorder32(data[:4], r.ByteOrder))))
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDataType, r.DataType)
	}
	return raw * r.Scale, nil
}

// reorder32 rearranges four register bytes into big-endian ABCD order.
func reorder32(in []byte, order string) []byte {
	var out [4]byte
	switch strings.ToUpper(strings.TrimSpace(order)) {
	case "DCBA":
		out[0], out[1], out[2], out[3] = in[3], in[2], in[1], in[0]
	case "BADC":
		out[0], out[1], out[2], out[3] = in[1], in[0], in[3], in[2]
	case "CDAB":
		out[0], out[1], out[2], out[3] = in[2], in[3], in[0], in[1]
	default:
		copy(out[:], in[:4])
	}
	return out[:]
}
