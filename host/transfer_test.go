package host

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/uotghs/host/hal"
	"github.com/ardnew/uotghs/host/hal/sim"
	"github.com/ardnew/uotghs/pkg"
)

// hidDevice returns a full-speed device with an interrupt IN endpoint and a
// bulk OUT endpoint.
func hidDevice(naks int) (*sim.Device, *sim.Endpoint, *sim.Endpoint) {
	in := &sim.Endpoint{Address: 0x81, Type: hal.TransferInterrupt, MaxPacketSize: 8, Interval: 10, NAKs: naks}
	out := &sim.Endpoint{Address: 0x02, Type: hal.TransferBulk, MaxPacketSize: 64}
	dev := fullSpeedDevice(64).Configure(sim.ConfigurationDescriptor(0x03, 0x01, 0x01, in, out), in, out)
	dev.Strings[2] = "Widget"
	return dev, in, out
}

// openEndpoints configures the device and opens both endpoints.
func openEndpoints(t *testing.T, h *Host) (in, out *Endpoint) {
	t.Helper()
	var cfg Configuration
	require.NoError(t, ReadConfiguration(h, 1, 0, &cfg))
	require.NoError(t, SetConfiguration(h, 1, cfg.Descriptor.ConfigurationValue))

	in = NewEndpoint(1, cfg.Endpoint(hal.TransferInterrupt, true))
	out = NewEndpoint(1, cfg.Endpoint(hal.TransferBulk, false))
	require.NoError(t, h.OpenEndpoint(in))
	require.NoError(t, h.OpenEndpoint(out))
	return in, out
}

func TestReadConfiguration(t *testing.T) {
	dev, _, _ := hidDevice(0)
	h, _ := running(t, dev)

	var cfg Configuration
	require.NoError(t, ReadConfiguration(h, 1, 0, &cfg))
	assert.Equal(t, uint16(len(dev.Configuration)), cfg.Descriptor.TotalLength)
	require.Len(t, cfg.Interfaces, 1)
	assert.Equal(t, uint8(0x03), cfg.Interfaces[0].InterfaceClass)
	assert.Len(t, cfg.Endpoints, 2)

	require.NoError(t, SetConfiguration(h, 1, 1))
	assert.Equal(t, uint8(1), dev.ConfigurationValue())
}

func TestGetString(t *testing.T) {
	dev, _, _ := hidDevice(0)
	h, _ := running(t, dev)

	s, err := GetString(h, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "Widget", s)

	s, err = GetString(h, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, s)

	_, err = GetString(h, 1, 7)
	assert.ErrorIs(t, err, pkg.ErrStall)
}

// stringBus answers every control transfer with reply.
type stringBus struct {
	Bus
	reply []byte
}

func (b *stringBus) ControlTransfer(_ uint8, _ hal.SetupPacket, buf []byte) (int, error) {
	return copy(buf, b.reply), nil
}

func TestGetStringShortLength(t *testing.T) {
	tests := map[string][]byte{
		"length zero": {0x00, DescriptorTypeString, 'A', 0},
		"length one":  {0x01, DescriptorTypeString, 'A', 0},
	}
	for name, reply := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := GetString(&stringBus{reply: reply}, 1, 2)
			assert.ErrorIs(t, err, pkg.ErrDescriptorTooShort)
		})
	}

	s, err := GetString(&stringBus{reply: []byte{0x04, DescriptorTypeString, 'A', 0, 'B', 0}}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "A", s, "bLength bounds the string")
}

func TestControlTransferErrors(t *testing.T) {
	h, _ := running(t, fullSpeedDevice(64))

	_, err := h.ControlTransfer(3, hal.SetupPacket{}, nil)
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter, "unknown address")

	_, err = GetDescriptor(h, 1, DescriptorTypeDevice, 0, 0, nil)
	require.NoError(t, err, "zero-length data stage")

	_, err = h.ControlTransfer(1, hal.SetupPacket{RequestType: RequestTypeIn, Request: RequestGetDescriptor, Length: 18}, make([]byte, 4))
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter, "short buffer")
}

func TestControlTransferNAKs(t *testing.T) {
	dev := fullSpeedDevice(64)
	dev.ControlNAKs = 3
	h, _ := running(t, dev)

	status, err := GetStatus(h, 1, RequestTypeDevice, 0)
	require.NoError(t, err)
	assert.Zero(t, status)
}

func TestControlTransferNAKExhausted(t *testing.T) {
	dev := fullSpeedDevice(64)
	h, ctrl := newHost(t, testConfig())
	ctrl.Attach(dev)
	dev.ControlNAKs = -1
	h.Task(nil)

	assert.Equal(t, StateTaskError, h.State())
	assert.Equal(t, 1, h.Stats().NAKExhaustions)

	p, err := h.Pipes().Get(0)
	require.NoError(t, err)
	assert.True(t, p.Allocated(), "default pipe kept")
	assert.True(t, h.Pipes().Enabled(p))
	assert.True(t, h.Pipes().Frozen(p), "frozen after the data stage ran out of NAKs")
}

func TestControlTransferNAKExhaustedWhileRunning(t *testing.T) {
	dev := fullSpeedDevice(64)
	h, _ := running(t, dev)
	dev.ControlNAKs = -1

	_, err := GetStatus(h, 1, RequestTypeDevice, 0)
	assert.ErrorIs(t, err, pkg.ErrNAK)

	p, err := h.Pipes().Get(0)
	require.NoError(t, err)
	assert.True(t, p.Allocated())
	assert.Equal(t, uint8(1), p.Config().Address)
	assert.True(t, h.Pipes().Frozen(p))

	dev.ControlNAKs = 0
	_, err = GetStatus(h, 1, RequestTypeDevice, 0)
	assert.NoError(t, err, "default pipe usable again")
}

func TestInTransfer(t *testing.T) {
	dev, ep, _ := hidDevice(2)
	h, ctrl := running(t, dev)
	in, _ := openEndpoints(t, h)

	ep.Queue([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	ep.Queue([]byte{9, 10})

	buf := make([]byte, 32)
	n, err := h.InTransfer(in, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, buf[:n], "read until short packet")
	assert.Equal(t, uint8(0), ctrl.Pipe(in.Pipe().Index()).Toggle, "two packets toggled twice")
}

func TestInTransferNAKLimit(t *testing.T) {
	tests := []struct {
		naks int
		err  error
	}{
		{NAKLimit - 1, nil},
		{NAKLimit, pkg.ErrNAK},
	}
	for _, tt := range tests {
		dev, ep, _ := hidDevice(tt.naks)
		h, ctrl := running(t, dev)
		in, _ := openEndpoints(t, h)
		ep.Queue([]byte{0xAA})

		buf := make([]byte, 8)
		n, err := h.InTransfer(in, buf)
		if tt.err == nil {
			require.NoError(t, err, "%d NAKs", tt.naks)
			assert.Equal(t, 1, n)
			continue
		}
		require.Error(t, err, "%d NAKs", tt.naks)
		assert.ErrorIs(t, err, tt.err)
		assert.ErrorIs(t, err, pkg.ErrTransfer)

		var te *TransferError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, hal.TokenIn, te.Token)

		st := ctrl.Pipe(te.Pipe)
		assert.True(t, st.Frozen, "pipe frozen")
		assert.True(t, st.Allocated, "pipe still allocated")
		assert.Equal(t, 1, h.Stats().NAKExhaustions)
	}
}

func TestInTransferTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.NAKLimit = 1000
	cfg.SpinLimit = 32
	dev, _, _ := hidDevice(-1)

	h, ctrl := newHost(t, cfg)
	ctrl.Attach(dev)
	h.Task(nil)
	require.Equal(t, StateRunning, h.State())
	in, _ := openEndpoints(t, h)

	_, err := h.InTransfer(in, make([]byte, 8))
	assert.ErrorIs(t, err, pkg.ErrTimeout)
	assert.ErrorIs(t, err, pkg.ErrTransfer)
	assert.True(t, ctrl.Pipe(in.Pipe().Index()).Frozen)
	assert.Equal(t, 1, h.Stats().Timeouts)
}

func TestStallAndClearHalt(t *testing.T) {
	dev, ep, _ := hidDevice(0)
	h, _ := running(t, dev)
	in, _ := openEndpoints(t, h)

	ep.Stalled = true
	ep.Queue([]byte{1})
	_, err := h.InTransfer(in, make([]byte, 8))
	require.ErrorIs(t, err, pkg.ErrStall)

	status, err := GetStatus(h, 1, RequestTypeEndpoint, uint16(in.Address))
	require.NoError(t, err)
	assert.Equal(t, uint16(1), status, "halted")

	require.NoError(t, ClearEndpointHalt(h, in))
	n, err := h.InTransfer(in, make([]byte, 8))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOutTransfer(t *testing.T) {
	dev, _, ep := hidDevice(0)
	h, _ := running(t, dev)
	_, out := openEndpoints(t, h)

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := h.OutTransfer(out, data)
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	got := ep.Received()
	require.Len(t, got, 2)
	assert.Equal(t, data[:64], got[0])
	assert.Equal(t, data[64:], got[1])

	n, err = h.OutTransfer(out, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.Len(t, ep.Received(), 3)
	assert.Empty(t, ep.Received()[2], "zero-length packet")
}

func TestEndpointNotOpen(t *testing.T) {
	dev, _, _ := hidDevice(0)
	h, _ := running(t, dev)
	in, out := openEndpoints(t, h)

	_, err := h.OutTransfer(in, []byte{1})
	assert.ErrorIs(t, err, pkg.ErrInvalidOperation, "wrong direction")
	_, err = h.InTransfer(out, make([]byte, 8))
	assert.ErrorIs(t, err, pkg.ErrInvalidOperation, "wrong direction")

	require.NoError(t, h.CloseEndpoint(in))
	assert.Nil(t, in.Pipe())
	_, err = h.InTransfer(in, make([]byte, 8))
	assert.ErrorIs(t, err, pkg.ErrInvalidOperation)
	assert.ErrorIs(t, h.CloseEndpoint(in), pkg.ErrInvalidOperation)

	stranger := &Endpoint{Device: 4, Address: 0x81, Type: hal.TransferBulk, MaxPacketSize: 64}
	assert.ErrorIs(t, h.OpenEndpoint(stranger), pkg.ErrInvalidParameter)
}

func TestEndpointReopenAfterReuse(t *testing.T) {
	dev, _, _ := hidDevice(0)
	h, _ := running(t, dev)
	in, _ := openEndpoints(t, h)
	idx := in.Pipe().Index()

	h.Pipes().Free(in.Pipe())
	other := &Endpoint{Device: 1, Address: 0x83, Type: hal.TransferBulk, MaxPacketSize: 64}
	require.NoError(t, h.OpenEndpoint(other))
	require.Equal(t, idx, other.Pipe().Index(), "pipe reused")

	_, err := h.InTransfer(in, make([]byte, 8))
	assert.ErrorIs(t, err, pkg.ErrInvalidOperation, "stale pipe handle")

	// Same device and endpoint number, opposite direction.
	h.Pipes().Free(other.Pipe())
	in2 := &Endpoint{Device: 1, Address: 0x81, Type: hal.TransferBulk, MaxPacketSize: 64}
	require.NoError(t, h.OpenEndpoint(in2))
	h.Pipes().Free(in2.Pipe())
	out := &Endpoint{Device: 1, Address: 0x01, Type: hal.TransferBulk, MaxPacketSize: 64}
	require.NoError(t, h.OpenEndpoint(out))
	require.Equal(t, in2.Pipe().Index(), out.Pipe().Index(), "pipe reused")

	_, err = h.InTransfer(in2, make([]byte, 8))
	assert.ErrorIs(t, err, pkg.ErrInvalidOperation, "stale handle after direction change")
	assert.ErrorIs(t, h.CloseEndpoint(in2), pkg.ErrInvalidOperation)
	assert.True(t, out.Pipe().Allocated(), "closing the stale handle leaves the new owner alone")
}
