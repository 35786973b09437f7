package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Register File Stub
// =============================================================================

// regFile is a plain read/write register file.
type regFile struct {
	regs  map[Register]uint32
	loads int
}

func newRegFile() *regFile { return &regFile{regs: make(map[Register]uint32)} }

func (f *regFile) Load(r Register) uint32 {
	f.loads++
	return f.regs[r]
}

func (f *regFile) Store(r Register, v uint32) { f.regs[r] = v }

func (f *regFile) FIFO() Memory { return nil }

var _ Registers = (*regFile)(nil)

// =============================================================================
// Speed Tests
// =============================================================================

func TestSpeed_String(t *testing.T) {
	tests := []struct {
		speed    Speed
		expected string
	}{
		{SpeedUnknown, "Unknown"},
		{SpeedLow, "Low Speed"},
		{SpeedFull, "Full Speed"},
		{SpeedHigh, "High Speed"},
		{Speed(255), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.speed.String())
		})
	}
}

func TestSpeed_MaxPacketSize0(t *testing.T) {
	assert.Equal(t, uint16(8), SpeedLow.MaxPacketSize0())
	assert.Equal(t, uint16(64), SpeedFull.MaxPacketSize0())
	assert.Equal(t, uint16(512), SpeedHigh.MaxPacketSize0())
	assert.Equal(t, uint16(0), SpeedUnknown.MaxPacketSize0())
}

func TestSpeedStatusRoundTrip(t *testing.T) {
	for _, s := range []Speed{SpeedLow, SpeedFull, SpeedHigh} {
		t.Run(s.String(), func(t *testing.T) {
			sr := StatusFromSpeed(s) | SrVBUS | SrCLKUSABLE
			assert.Equal(t, s, SpeedFromStatus(sr))
		})
	}
	assert.Equal(t, SpeedUnknown, SpeedFromStatus(SRSpeedReserved<<SRSpeedPos))
}

// =============================================================================
// SetupPacket Tests
// =============================================================================

func TestSetupPacket_MarshalParse(t *testing.T) {
	in := SetupPacket{RequestType: 0x80, Request: 0x06, Value: 0x0100, Index: 0, Length: 18}
	var buf [SetupPacketSize]byte
	assert.Equal(t, SetupPacketSize, in.MarshalTo(buf[:]))
	assert.Equal(t, []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00}, buf[:])

	var out SetupPacket
	assert.True(t, ParseSetupPacket(buf[:], &out))
	assert.Equal(t, in, out)
	assert.True(t, out.IsIn())

	assert.Equal(t, 0, in.MarshalTo(buf[:4]))
	assert.False(t, ParseSetupPacket(buf[:7], &out))
}

// =============================================================================
// Register Helper Tests
// =============================================================================

func TestPipeRegisters(t *testing.T) {
	assert.Equal(t, Register(0x0500), PipeCfg(0))
	assert.Equal(t, Register(0x0524), PipeCfg(9))
	assert.Equal(t, Register(0x053C), PipeISR(3))
	assert.Equal(t, Register(0x05FC), PipeIER(3))
	assert.Equal(t, Register(0x0624), PipeIDR(1))
	assert.Equal(t, int64(3*0x8000), FIFOOffset(3))
}

func TestPipeAddr(t *testing.T) {
	tests := []struct {
		pipe  uint8
		reg   Register
		shift uint32
	}{
		{0, HSTADDR1, 0},
		{3, HSTADDR1, 24},
		{4, HSTADDR2, 0},
		{7, HSTADDR2, 24},
		{8, HSTADDR3, 0},
		{9, HSTADDR3, 8},
	}
	for _, tt := range tests {
		reg, shift := PipeAddr(tt.pipe)
		assert.Equal(t, tt.reg, reg, "pipe %d", tt.pipe)
		assert.Equal(t, tt.shift, shift, "pipe %d", tt.pipe)
	}
}

func TestSetClearModify(t *testing.T) {
	f := newRegFile()
	Set(f, CTRL, CtrlUSBE|CtrlFRZCLK)
	assert.True(t, IsSet(f, CTRL, CtrlUSBE))
	Clear(f, CTRL, CtrlFRZCLK)
	assert.Equal(t, uint32(CtrlUSBE), f.Load(CTRL))

	Modify(f, DEVCTRL, DevctrlSpdconfMask, SpdconfLowPower<<DevctrlSpdconfPos)
	assert.Equal(t, uint32(SpdconfLowPower), Field(f.Load(DEVCTRL), DevctrlSpdconfMask, DevctrlSpdconfPos))
}

func TestWait(t *testing.T) {
	f := newRegFile()
	assert.False(t, Wait(f, SR, SrCLKUSABLE, true, 5))
	assert.Equal(t, 5, f.loads)

	f.Store(SR, SrCLKUSABLE)
	assert.True(t, Wait(f, SR, SrCLKUSABLE, true, 5))
	assert.True(t, Wait(f, SR, SrVBUS, false, 1))
}
