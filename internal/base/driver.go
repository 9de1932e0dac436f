// Package base sends velocity commands to the mobile platform over the
// network.
package base

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/rodri-castro/joy-base-control/internal/teleop"
)

// Wire framing for velocity command packets:
//
//	Bytes 0-3:   magic "JBC1"
//	Bytes 4-5:   message type (0x01 0x00 for velocity command)
//	Bytes 6-7:   payload length (big endian)
//	Bytes 8-11:  sequence number (big endian)
//	Payload:     linear x, linear y, angular z as big-endian float64
const (
	frameMagic      = "JBC1"
	headerLen       = 12
	velocityPayload = 24
	msgTypeVelocity = 0x0100
	writeTimeout    = 500 * time.Millisecond
	connectTimeout  = 5 * time.Second
)

// Driver manages the command connection to the platform. Commands are
// fire-and-forget; the platform does not acknowledge them.
type Driver struct {
	conn     net.Conn
	mu       sync.Mutex
	seqNum   uint32
	protocol string
}

// Config for the base driver
type Config struct {
	// Address like "192.168.1.50:7070"
	Address  string
	Protocol string // "udp" or "tcp"
}

// NewDriver connects to the platform's command endpoint.
func NewDriver(cfg Config) (*Driver, error) {
	protocol := cfg.Protocol
	if protocol == "" {
		protocol = "udp"
	}

	var conn net.Conn
	var err error
	switch protocol {
	case "udp", "tcp":
		conn, err = net.DialTimeout(protocol, cfg.Address, connectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to base over %s: %w", protocol, err)
		}
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", protocol)
	}

	return &Driver{
		conn:     conn,
		protocol: protocol,
	}, nil
}

// Protocol returns the transport the driver was configured with.
func (d *Driver) Protocol() string {
	return d.protocol
}

// SendTwist transmits one velocity command. A short write deadline keeps a
// stalled connection from blocking the control loop.
func (d *Driver) SendTwist(v teleop.Twist) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	packet := encodeVelocityFrame(d.seqNum, v)
	d.seqNum++

	if err := d.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if _, err := d.conn.Write(packet); err != nil {
		return fmt.Errorf("failed to send velocity command: %w", err)
	}
	return nil
}

// Close closes the command connection
func (d *Driver) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

func encodeVelocityFrame(seq uint32, v teleop.Twist) []byte {
	packet := make([]byte, headerLen+velocityPayload)
	copy(packet[0:4], frameMagic)
	binary.BigEndian.PutUint16(packet[4:6], msgTypeVelocity)
	binary.BigEndian.PutUint16(packet[6:8], velocityPayload)
	binary.BigEndian.PutUint32(packet[8:12], seq)

	binary.BigEndian.PutUint64(packet[12:20], math.Float64bits(v.LinearX))
	binary.BigEndian.PutUint64(packet[20:28], math.Float64bits(v.LinearY))
	binary.BigEndian.PutUint64(packet[28:36], math.Float64bits(v.AngularZ))
	return packet
}
