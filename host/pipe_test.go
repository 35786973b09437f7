package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/uotghs/host/hal"
	"github.com/ardnew/uotghs/host/hal/sim"
	"github.com/ardnew/uotghs/pkg"
)

func newPipes(t *testing.T) (*Pipes, *sim.Controller) {
	t.Helper()
	ctrl := sim.New()
	return NewPipes(ctrl, 64), ctrl
}

func bulkIn(address, ep uint8, size uint16) PipeConfig {
	return PipeConfig{
		Address:       address,
		Endpoint:      ep,
		Type:          hal.TransferBulk,
		Token:         hal.TokenIn,
		MaxPacketSize: size,
	}
}

// snapshot captures every pipe register the manager may write.
func snapshot(ctrl *sim.Controller) []uint32 {
	out := []uint32{ctrl.Load(hal.HSTPIP), ctrl.Load(hal.HSTADDR1), ctrl.Load(hal.HSTADDR2), ctrl.Load(hal.HSTADDR3)}
	for n := uint8(0); n < hal.NumPipes; n++ {
		out = append(out, ctrl.Load(hal.PipeCfg(n)), ctrl.Load(hal.PipeIMR(n)))
	}
	return out
}

func TestSizeClass(t *testing.T) {
	tests := []struct {
		size  uint16
		class uint32
		ok    bool
	}{
		{7, 0, false},
		{8, 0, true},
		{9, 1, true},
		{16, 1, true},
		{64, 3, true},
		{100, 4, true},
		{512, 6, true},
		{1023, 7, true},
		{1024, 7, true},
		{1025, 0, false},
	}
	for _, tt := range tests {
		class, ok := SizeClass(tt.size)
		assert.Equal(t, tt.ok, ok, "size %d", tt.size)
		if tt.ok {
			assert.Equal(t, tt.class, class, "size %d", tt.size)
		}
	}
}

func TestPipeAllocDistinct(t *testing.T) {
	m, ctrl := newPipes(t)
	seen := map[uint8]bool{}
	for i := uint8(1); i < hal.NumPipes; i++ {
		p, err := m.Alloc(bulkIn(1, i, 64))
		require.NoError(t, err)
		assert.False(t, seen[p.Index()], "pipe %d handed out twice", p.Index())
		assert.NotZero(t, p.Index(), "pipe 0 is reserved")
		seen[p.Index()] = true

		st := ctrl.Pipe(p.Index())
		assert.True(t, st.Enabled)
		assert.True(t, st.ConfigOK)
		assert.True(t, st.Frozen, "allocated pipes start frozen")
		assert.Equal(t, i, st.Endpoint)
	}
	_, err := m.Alloc(bulkIn(1, 1, 64))
	assert.ErrorIs(t, err, pkg.ErrOutOfPipes)
}

func TestPipeAllocInvalidSizeWritesNothing(t *testing.T) {
	m, ctrl := newPipes(t)
	before := snapshot(ctrl)
	for _, size := range []uint16{0, 4, 2048} {
		_, err := m.Alloc(bulkIn(1, 1, size))
		assert.ErrorIs(t, err, pkg.ErrInvalidSize)
	}
	assert.Equal(t, before, snapshot(ctrl))
}

func TestPipeAllocInvalidConfiguration(t *testing.T) {
	tests := map[string]PipeConfig{
		"isochronous": {Type: hal.TransferIsochronous, Token: hal.TokenIn, MaxPacketSize: 64},
		"three banks": {Type: hal.TransferBulk, Token: hal.TokenIn, MaxPacketSize: 64, Banks: 3},
		"setup bulk":  {Type: hal.TransferBulk, Token: hal.TokenSetup, MaxPacketSize: 64},
		"endpoint 16": {Type: hal.TransferBulk, Token: hal.TokenOut, MaxPacketSize: 64, Endpoint: 16},
		"address 128": {Type: hal.TransferBulk, Token: hal.TokenOut, MaxPacketSize: 64, Address: 128},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			m, ctrl := newPipes(t)
			before := snapshot(ctrl)
			_, err := m.Alloc(cfg)
			assert.ErrorIs(t, err, pkg.ErrInvalidConfiguration)
			assert.Equal(t, before, snapshot(ctrl))
		})
	}
}

func TestPipeAllocRejected(t *testing.T) {
	m, ctrl := newPipes(t)
	ctrl.RejectConfig(1, true)

	_, err := m.Alloc(bulkIn(1, 1, 64))
	require.ErrorIs(t, err, pkg.ErrInvalidConfiguration)
	st := ctrl.Pipe(1)
	assert.False(t, st.Enabled, "reverted")
	assert.False(t, st.Allocated, "reverted")
	assert.False(t, m.pipes[1].Allocated())
}

func TestPipeAllocDPRAMExhausted(t *testing.T) {
	m, ctrl := newPipes(t)
	big := bulkIn(1, 1, 1024)
	big.Banks = 2
	_, err := m.Alloc(big)
	require.NoError(t, err)
	_, err = m.Alloc(big)
	require.NoError(t, err)

	_, err = m.Alloc(bulkIn(1, 3, 8))
	assert.ErrorIs(t, err, pkg.ErrInvalidConfiguration)
	assert.False(t, ctrl.Pipe(3).Enabled)
}

func TestPipeConfigBits(t *testing.T) {
	m, ctrl := newPipes(t)
	p, err := m.Alloc(PipeConfig{
		Address:       9,
		Endpoint:      3,
		Type:          hal.TransferInterrupt,
		Token:         hal.TokenIn,
		MaxPacketSize: 16,
		Interval:      10,
		Banks:         2,
	})
	require.NoError(t, err)

	st := ctrl.Pipe(p.Index())
	assert.Equal(t, hal.TransferInterrupt, st.Type)
	assert.Equal(t, hal.TokenIn, st.Token)
	assert.Equal(t, 16, st.Size)
	assert.Equal(t, 2, st.Banks)
	assert.Equal(t, uint8(10), st.Interval)
	assert.Equal(t, uint8(9), st.Address)
	assert.NotZero(t, ctrl.Load(hal.PipeCfg(p.Index()))&hal.CfgAUTOSW)
}

func TestPipeAddressRegister(t *testing.T) {
	m, ctrl := newPipes(t)
	for i := uint8(1); i <= 5; i++ {
		_, err := m.Alloc(bulkIn(0x55, i, 8))
		require.NoError(t, err)
	}
	// Pipe 5 lives in HSTADDR2 bits 8..14.
	assert.Equal(t, uint32(0x55), ctrl.Load(hal.HSTADDR2)>>8&hal.PipeAddrMask)
	assert.Equal(t, uint32(0x55), ctrl.Load(hal.HSTADDR1)>>24&hal.PipeAddrMask, "pipe 3")
}

func TestConfigureDefault(t *testing.T) {
	m, ctrl := newPipes(t)
	p, err := m.ConfigureDefault(0, 64)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), p.Index())
	st := ctrl.Pipe(0)
	assert.Equal(t, hal.TransferControl, st.Type)
	assert.Equal(t, hal.TokenSetup, st.Token)
	assert.Equal(t, 64, st.Size)
	assert.Zero(t, ctrl.Load(hal.PipeCfg(0))&hal.CfgAUTOSW)

	_, err = m.ConfigureDefault(3, 64)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), ctrl.Pipe(0).Address, "address reprogrammed")

	_, err = m.ConfigureDefault(3, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, ctrl.Pipe(0).Size, "resized")
	assert.Equal(t, uint8(3), ctrl.Pipe(0).Address)

	_, err = m.ConfigureDefault(0, 12)
	require.NoError(t, err, "rounded up to 16")
	assert.Equal(t, 16, ctrl.Pipe(0).Size)
}

func TestPipeFree(t *testing.T) {
	m, ctrl := newPipes(t)
	a, _ := m.Alloc(bulkIn(1, 1, 64))
	b, _ := m.Alloc(bulkIn(2, 2, 64))
	c, _ := m.Alloc(bulkIn(1, 3, 64))

	assert.Equal(t, 2, m.FreeAddress(1))
	assert.False(t, ctrl.Pipe(a.Index()).Enabled)
	assert.False(t, ctrl.Pipe(c.Index()).Allocated)
	assert.False(t, a.Allocated())
	assert.True(t, ctrl.Pipe(b.Index()).Enabled)

	p, err := m.Alloc(bulkIn(3, 1, 64))
	require.NoError(t, err)
	assert.Equal(t, a.Index(), p.Index(), "lowest disabled pipe reused")
}

func TestPipeSendDisabled(t *testing.T) {
	m, _ := newPipes(t)
	p, err := m.Get(4)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Send(p, hal.TokenIn), pkg.ErrInvalidOperation)

	_, err = m.Get(hal.NumPipes)
	assert.ErrorIs(t, err, pkg.ErrPipeOutOfRange)
}

func TestPipeResetToggle(t *testing.T) {
	m, ctrl := newPipes(t)
	p, _ := m.Alloc(bulkIn(1, 1, 64))
	m.Reset(p)
	assert.Zero(t, ctrl.Pipe(p.Index()).Toggle)
	assert.True(t, ctrl.Pipe(p.Index()).Enabled, "allocation kept")
}

func TestPipeWrite(t *testing.T) {
	m, ctrl := newPipes(t)
	p, _ := m.Alloc(PipeConfig{Address: 1, Endpoint: 2, Type: hal.TransferBulk, Token: hal.TokenOut, MaxPacketSize: 8})

	assert.ErrorIs(t, m.Write(p, make([]byte, 9)), pkg.ErrInvalidSize)
	require.NoError(t, m.Write(p, []byte{1, 2, 3}))

	count := hal.Field(ctrl.Load(hal.PipeISR(p.Index())), hal.PipPBYCTMask, hal.PipPBYCTPos)
	assert.Equal(t, uint32(3), count)

	got := make([]byte, 3)
	_, err := ctrl.FIFO().ReadAt(got, hal.FIFOOffset(p.Index()))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestPipePollComplete(t *testing.T) {
	h, _ := running(t, fullSpeedDevice(64))
	m := h.Pipes()
	p, err := m.ConfigureDefault(1, 64)
	require.NoError(t, err)

	setup := hal.SetupPacket{RequestType: RequestTypeIn, Request: RequestGetStatus, Length: 2}
	var pkt [8]byte
	setup.MarshalTo(pkt[:])
	require.NoError(t, m.Write(p, pkt[:]))
	require.NoError(t, m.Send(p, hal.TokenSetup))
	assert.False(t, m.Frozen(p), "send unfreezes")

	done := false
	for i := 0; i < 16 && !done; i++ {
		done, err = m.PollComplete(p, hal.TokenSetup)
		require.NoError(t, err)
	}
	assert.True(t, done)
	assert.True(t, m.Frozen(p), "frozen on completion")
}
