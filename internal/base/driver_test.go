package base

import (
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rodri-castro/joy-base-control/internal/teleop"
)

func decodeVelocityFrame(t *testing.T, packet []byte) (uint32, teleop.Twist) {
	t.Helper()
	require.Len(t, packet, headerLen+velocityPayload)
	require.Equal(t, frameMagic, string(packet[0:4]))
	require.Equal(t, uint16(msgTypeVelocity), binary.BigEndian.Uint16(packet[4:6]))
	require.Equal(t, uint16(velocityPayload), binary.BigEndian.Uint16(packet[6:8]))

	seq := binary.BigEndian.Uint32(packet[8:12])
	return seq, teleop.Twist{
		LinearX:  math.Float64frombits(binary.BigEndian.Uint64(packet[12:20])),
		LinearY:  math.Float64frombits(binary.BigEndian.Uint64(packet[20:28])),
		AngularZ: math.Float64frombits(binary.BigEndian.Uint64(packet[28:36])),
	}
}

func TestDriverSendTwist(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	d, err := NewDriver(Config{Address: pc.LocalAddr().String()})
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, "udp", d.Protocol())

	sent := []teleop.Twist{
		{LinearX: 0.5, LinearY: -0.25, AngularZ: 1.0},
		{},
		{LinearX: -2.0},
	}
	for _, v := range sent {
		require.NoError(t, d.SendTwist(v))
	}

	buf := make([]byte, 256)
	for i, want := range sent {
		require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := pc.ReadFrom(buf)
		require.NoError(t, err)

		seq, got := decodeVelocityFrame(t, buf[:n])
		assert.Equal(t, uint32(i), seq)
		assert.Equal(t, want, got)
	}
}

func TestNewDriverRejectsUnknownProtocol(t *testing.T) {
	_, err := NewDriver(Config{Address: "127.0.0.1:7070", Protocol: "serial"})
	assert.Error(t, err)
}
