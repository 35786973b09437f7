package sim

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/ardnew/uotghs/host/hal"
)

// Standard request codes answered by the device model.
const (
	reqGetStatus        = 0x00
	reqClearFeature     = 0x01
	reqSetFeature       = 0x03
	reqSetAddress       = 0x05
	reqGetDescriptor    = 0x06
	reqGetConfiguration = 0x08
	reqSetConfiguration = 0x09
	reqGetInterface     = 0x0A
	reqSetInterface     = 0x0B

	descDevice        = 0x01
	descConfiguration = 0x02
	descString        = 0x03
	descInterface     = 0x04
	descEndpoint      = 0x05

	featureEndpointHalt = 0x00
)

// Handshake is a device's answer to one bus transaction.
type Handshake uint8

// Handshake values.
const (
	ACK Handshake = iota
	NAK
	STALL
)

// String returns the handshake PID name.
func (h Handshake) String() string {
	switch h {
	case ACK:
		return "ACK"
	case NAK:
		return "NAK"
	case STALL:
		return "STALL"
	default:
		return "UNKNOWN"
	}
}

// Endpoint is a non-control endpoint of a simulated device.
type Endpoint struct {
	Address       uint8 // bit 7 set for IN
	Type          hal.TransferType
	MaxPacketSize uint16
	Interval      uint8

	// NAKs is the number of NAK handshakes sent before each packet is
	// accepted or delivered. A negative value NAKs forever.
	NAKs int

	// Stalled makes every transaction return STALL until cleared with
	// CLEAR_FEATURE(ENDPOINT_HALT).
	Stalled bool

	in      [][]byte
	out     [][]byte
	nakLeft int
	armed   bool
}

// Queue appends a packet the endpoint returns to a later IN token.
func (e *Endpoint) Queue(p []byte) {
	e.in = append(e.in, append([]byte(nil), p...))
}

// Pending returns the number of queued IN packets.
func (e *Endpoint) Pending() int { return len(e.in) }

// Received returns the OUT packets accepted so far, oldest first.
func (e *Endpoint) Received() [][]byte { return e.out }

// handshake runs the NAK countdown shared by IN and OUT tokens.
func (e *Endpoint) handshake() Handshake {
	if e.Stalled {
		return STALL
	}
	if e.NAKs < 0 {
		return NAK
	}
	if !e.armed {
		e.nakLeft, e.armed = e.NAKs, true
	}
	if e.nakLeft > 0 {
		e.nakLeft--
		return NAK
	}
	e.armed = false
	return ACK
}

// ctrlStage tracks the default control pipe across a request.
type ctrlStage uint8

const (
	stageIdle ctrlStage = iota
	stageDataIn
	stageDataOut
	stageStatusIn
	stageStatusOut
	stageStall
)

// Device models a USB device attached to the root port.
type Device struct {
	Speed hal.Speed

	// Descriptor is the 18-byte device descriptor.
	Descriptor []byte

	// Configuration is the full configuration descriptor tree returned for
	// GET_DESCRIPTOR(CONFIGURATION).
	Configuration []byte

	// Strings maps string descriptor indices to their text. Index 0 always
	// reports US English.
	Strings map[uint8]string

	// ControlNAKs is the number of NAK handshakes the default endpoint sends
	// before each data or status stage packet. Negative NAKs forever.
	ControlNAKs int

	endpoints map[uint8]*Endpoint

	address       uint8
	configuration uint8

	stage    ctrlStage
	setup    hal.SetupPacket
	reply    []byte
	received []byte
	ctrlNAK  Endpoint

	requests []hal.SetupPacket
}

// NewDevice returns a device of the given speed presenting desc. The
// configuration tree and endpoints are added with Configure.
func NewDevice(speed hal.Speed, desc []byte) *Device {
	return &Device{
		Speed:      speed,
		Descriptor: append([]byte(nil), desc...),
		Strings:    map[uint8]string{},
		endpoints:  map[uint8]*Endpoint{},
	}
}

// Configure sets the configuration tree and registers its endpoints.
func (d *Device) Configure(config []byte, eps ...*Endpoint) *Device {
	d.Configuration = append([]byte(nil), config...)
	for _, ep := range eps {
		d.endpoints[ep.Address] = ep
	}
	return d
}

// Endpoint returns the endpoint with the given address, or nil.
func (d *Device) Endpoint(addr uint8) *Endpoint { return d.endpoints[addr] }

// Address returns the address assigned with SET_ADDRESS.
func (d *Device) Address() uint8 { return d.address }

// ConfigurationValue returns the value selected with SET_CONFIGURATION.
func (d *Device) ConfigurationValue() uint8 { return d.configuration }

// Requests returns every SETUP packet received since attach.
func (d *Device) Requests() []hal.SetupPacket { return d.requests }

// MaxPacketSize0 returns the default endpoint's packet size.
func (d *Device) MaxPacketSize0() int {
	if len(d.Descriptor) > 7 && d.Descriptor[7] != 0 {
		return int(d.Descriptor[7])
	}
	return 8
}

// busReset returns the device to the default state.
func (d *Device) busReset() {
	d.address = 0
	d.configuration = 0
	d.stage = stageIdle
	for _, ep := range d.endpoints {
		ep.armed = false
	}
}

// Setup handles a SETUP transaction on endpoint 0. A device always
// acknowledges SETUP; a request it cannot serve stalls the next stage.
func (d *Device) Setup(data []byte) Handshake {
	var req hal.SetupPacket
	if !hal.ParseSetupPacket(data, &req) {
		d.stage = stageStall
		return ACK
	}
	d.requests = append(d.requests, req)
	d.setup = req
	d.reply = nil
	d.received = nil
	d.ctrlNAK = Endpoint{NAKs: d.ControlNAKs}

	reply, ok := d.standard(req)
	switch {
	case !ok:
		d.stage = stageStall
	case req.IsIn() && req.Length > 0:
		if len(reply) > int(req.Length) {
			reply = reply[:req.Length]
		}
		d.reply = reply
		d.stage = stageDataIn
	case !req.IsIn() && req.Length > 0:
		d.stage = stageDataOut
	default:
		d.stage = stageStatusIn
	}
	return ACK
}

// In handles an IN token on endpoint num and returns the packet sent.
func (d *Device) In(num uint8) ([]byte, Handshake) {
	if num == 0 {
		return d.controlIn()
	}
	ep := d.endpoints[0x80|num]
	if ep == nil {
		return nil, STALL
	}
	if hs := ep.handshake(); hs != ACK {
		return nil, hs
	}
	if len(ep.in) == 0 {
		// Nothing queued: keep answering NAK until the host gives up.
		ep.armed = true
		return nil, NAK
	}
	p := ep.in[0]
	ep.in = ep.in[1:]
	if mps := int(ep.MaxPacketSize); mps > 0 && len(p) > mps {
		p = p[:mps]
	}
	return p, ACK
}

// Out handles an OUT token carrying data on endpoint num.
func (d *Device) Out(num uint8, data []byte) Handshake {
	if num == 0 {
		return d.controlOut(data)
	}
	ep := d.endpoints[num]
	if ep == nil {
		return STALL
	}
	hs := ep.handshake()
	if hs == ACK {
		ep.out = append(ep.out, append([]byte(nil), data...))
	}
	return hs
}

func (d *Device) controlIn() ([]byte, Handshake) {
	switch d.stage {
	case stageDataIn:
		if hs := d.ctrlNAK.handshake(); hs != ACK {
			return nil, hs
		}
		n := d.MaxPacketSize0()
		p := d.reply[:min(n, len(d.reply))]
		d.reply = d.reply[len(p):]
		if len(p) < n {
			d.stage = stageStatusOut
		}
		return p, ACK
	case stageStatusIn:
		if hs := d.ctrlNAK.handshake(); hs != ACK {
			return nil, hs
		}
		d.complete()
		d.stage = stageIdle
		return nil, ACK
	default:
		return nil, STALL
	}
}

func (d *Device) controlOut(data []byte) Handshake {
	switch d.stage {
	case stageDataOut:
		if hs := d.ctrlNAK.handshake(); hs != ACK {
			return hs
		}
		d.received = append(d.received, data...)
		if len(d.received) >= int(d.setup.Length) {
			d.stage = stageStatusIn
		}
		return ACK
	case stageDataIn, stageStatusOut:
		// Status stage, possibly ending a data stage early.
		if hs := d.ctrlNAK.handshake(); hs != ACK {
			return hs
		}
		d.stage = stageIdle
		return ACK
	default:
		return STALL
	}
}

// complete applies state changes that take effect after the status stage.
func (d *Device) complete() {
	switch d.setup.Request {
	case reqSetAddress:
		d.address = uint8(d.setup.Value) & hal.PipeAddrMask
	case reqSetConfiguration:
		d.configuration = uint8(d.setup.Value)
	}
}

// standard answers chapter 9 requests. It reports false for requests the
// device does not support.
func (d *Device) standard(req hal.SetupPacket) ([]byte, bool) {
	switch req.Request {
	case reqGetDescriptor:
		return d.descriptor(uint8(req.Value>>8), uint8(req.Value))
	case reqSetAddress:
		return nil, req.Value <= hal.PipeAddrMask
	case reqSetConfiguration:
		return nil, req.Value == 0 || d.hasConfiguration(uint8(req.Value))
	case reqGetConfiguration:
		return []byte{d.configuration}, true
	case reqGetStatus:
		if req.RequestType&0x1F == 0x02 {
			if ep := d.endpoints[uint8(req.Index)]; ep != nil && ep.Stalled {
				return []byte{1, 0}, true
			}
		}
		return []byte{0, 0}, true
	case reqClearFeature:
		if req.RequestType&0x1F == 0x02 && req.Value == featureEndpointHalt {
			ep := d.endpoints[uint8(req.Index)]
			if ep == nil {
				return nil, false
			}
			ep.Stalled = false
			ep.armed = false
		}
		return nil, true
	case reqSetFeature:
		if req.RequestType&0x1F == 0x02 && req.Value == featureEndpointHalt {
			ep := d.endpoints[uint8(req.Index)]
			if ep == nil {
				return nil, false
			}
			ep.Stalled = true
		}
		return nil, true
	case reqGetInterface:
		return []byte{0}, true
	case reqSetInterface:
		return nil, req.Value == 0
	default:
		return nil, false
	}
}

func (d *Device) hasConfiguration(v uint8) bool {
	return len(d.Configuration) > 5 && d.Configuration[5] == v
}

func (d *Device) descriptor(typ, index uint8) ([]byte, bool) {
	switch typ {
	case descDevice:
		return d.Descriptor, len(d.Descriptor) > 0
	case descConfiguration:
		return d.Configuration, len(d.Configuration) > 0
	case descString:
		if index == 0 {
			return []byte{4, descString, 0x09, 0x04}, true
		}
		s, ok := d.Strings[index]
		if !ok {
			return nil, false
		}
		return StringDescriptor(s), true
	default:
		return nil, false
	}
}

// DeviceDescriptor builds an 18-byte USB 2.0 device descriptor with one
// configuration.
func DeviceDescriptor(vendor, product uint16, class, maxPacketSize0 uint8) []byte {
	b := make([]byte, 18)
	b[0] = 18
	b[1] = descDevice
	binary.LittleEndian.PutUint16(b[2:], 0x0200)
	b[4] = class
	b[7] = maxPacketSize0
	binary.LittleEndian.PutUint16(b[8:], vendor)
	binary.LittleEndian.PutUint16(b[10:], product)
	binary.LittleEndian.PutUint16(b[12:], 0x0100)
	b[17] = 1
	return b
}

// ConfigurationDescriptor builds a configuration tree with value 1 and a
// single interface of the given class holding eps.
func ConfigurationDescriptor(class, subClass, protocol uint8, eps ...*Endpoint) []byte {
	total := 9 + 9 + 7*len(eps)
	b := make([]byte, 0, total)
	b = append(b, 9, descConfiguration, byte(total), byte(total>>8), 1, 1, 0, 0x80, 50)
	b = append(b, 9, descInterface, 0, 0, byte(len(eps)), class, subClass, protocol, 0)
	for _, ep := range eps {
		b = append(b, 7, descEndpoint, ep.Address, byte(ep.Type),
			byte(ep.MaxPacketSize), byte(ep.MaxPacketSize>>8), ep.Interval)
	}
	return b
}

// StringDescriptor encodes s as a UTF-16LE string descriptor.
func StringDescriptor(s string) []byte {
	u := utf16.Encode([]rune(s))
	b := make([]byte, 2, 2+2*len(u))
	b[0] = byte(2 + 2*len(u))
	b[1] = descString
	for _, c := range u {
		b = binary.LittleEndian.AppendUint16(b, c)
	}
	return b
}
