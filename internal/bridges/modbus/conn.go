package modbus

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	mb "github.com/goburrow/modbus"

	"github.com/Nussi649/ShellyManager/internal/meter"
)

const defaultPort = "502"

// Target is a parsed modbus:// address.
type Target struct {
	// Address is host:port.
	Address string
	UnitID  byte
}

// ParseAddress parses "modbus://host[:port][/unit]". defaultUnit applies
// when the address has no unit segment.
func ParseAddress(address string, defaultUnit uint8) (Target, error) {
	a := strings.TrimSpace(address)
	u, err := url.Parse(a)
	if err != nil || !strings.Contains(a, "://") {
		return Target{}, fmt.Errorf("%w: %q", meter.ErrUnsupportedAddress, address)
	}

	switch strings.ToLower(u.Scheme) {
	case "modbus", "modbus-tcp":
	default:
		return Target{}, fmt.Errorf("%w: scheme %q", meter.ErrUnsupportedAddress, u.Scheme)
	}

	host, port := u.Hostname(), u.Port()
	if host == "" {
		return Target{}, fmt.Errorf("%w: missing host in %q", ErrInvalidAddress, address)
	}
	if port == "" {
		port = defaultPort
	}

	t := Target{Address: net.JoinHostPort(host, port), UnitID: defaultUnit}
	if seg := strings.Trim(u.Path, "/"); seg != "" {
		unit, err := strconv.ParseUint(seg, 10, 8)
		if err != nil {
			return Target{}, fmt.Errorf("%w: unit %q", ErrInvalidAddress, seg)
		}
		t.UnitID = byte(unit)
	}
	return t, nil
}

// Conn is an open connection to one device.
type Conn interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	Close() error
}

// Dialer opens a connection to target.
type Dialer func(ctx context.Context, target Target, timeout time.Duration) (Conn, error)

type tcpConn struct {
	mb.Client
	handler *mb.TCPClientHandler
}

func (c *tcpConn) Close() error {
	return c.handler.Close()
}

// DialTCP connects to target with a goburrow TCP handler. The timeout is
// shortened to the context deadline when that comes first.
func DialTCP(ctx context.Context, target Target, timeout time.Duration) (Conn, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: %v", meter.ErrDeviceUnavailable, context.DeadlineExceeded)
	}

	h := mb.NewTCPClientHandler(target.Address)
	h.Timeout = timeout
	h.SlaveId = target.UnitID
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("%w: connecting %s: %v", meter.ErrDeviceUnavailable, target.Address, err)
	}
	return &tcpConn{Client: mb.NewClient(h), handler: h}, nil
}
