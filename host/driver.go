package host

import (
	"errors"
	"fmt"

	"github.com/ardnew/uotghs/host/hal"
)

// Bus is the transfer interface the host offers to drivers.
type Bus interface {
	// ControlTransfer runs a control transfer on the default pipe of the
	// device at address. buf holds at least setup.Length bytes.
	ControlTransfer(address uint8, setup hal.SetupPacket, buf []byte) (int, error)

	// InTransfer reads from an opened IN endpoint until a short packet or
	// until buf is full.
	InTransfer(ep *Endpoint, buf []byte) (int, error)

	// OutTransfer writes buf to an opened OUT endpoint.
	OutTransfer(ep *Endpoint, buf []byte) (int, error)

	// OpenEndpoint binds the endpoint to a hardware pipe.
	OpenEndpoint(ep *Endpoint) error

	// CloseEndpoint releases the endpoint's pipe.
	CloseEndpoint(ep *Endpoint) error
}

// Driver is a class driver the host offers enumerated devices to.
//
// The host never owns drivers: Task borrows the slice it is given for the
// duration of the call. A device's owner is remembered by its position in
// that slice, so every call passes the same drivers in the same order.
type Driver interface {
	// WantsDevice reports whether the driver takes the device.
	WantsDevice(desc *DeviceDescriptor) bool

	// AddDevice hands the device at address to the driver.
	AddDevice(desc *DeviceDescriptor, address uint8) error

	// Tick runs the driver once per poll in the Running state.
	Tick(millis uint32, bus Bus) error

	// RemoveDevice tells the driver the device at address is gone.
	RemoveDevice(address uint8)
}

// DriverError is a failure reported by a driver's Tick.
type DriverError struct {
	// Permanent marks the device at Address unusable. The host removes it.
	Permanent bool
	Address   uint8
	Err       error
}

// Permanent returns a DriverError that tears down the device at address.
func Permanent(address uint8, err error) *DriverError {
	return &DriverError{Permanent: true, Address: address, Err: err}
}

// Transient returns a DriverError the host logs and otherwise ignores.
func Transient(err error) *DriverError {
	return &DriverError{Err: err}
}

func (e *DriverError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("device %d: permanent failure: %v", e.Address, e.Err)
	}
	return fmt.Sprintf("transient failure: %v", e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// IsPermanent reports whether err carries a permanent DriverError and
// returns the address it names.
func IsPermanent(err error) (uint8, bool) {
	var de *DriverError
	if errors.As(err, &de) && de.Permanent {
		return de.Address, true
	}
	return 0, false
}

// Endpoint is a device endpoint a driver moves data through.
type Endpoint struct {
	Device        uint8 // device address
	Address       uint8 // endpoint address; bit 7 set for IN
	Type          hal.TransferType
	MaxPacketSize uint16
	Interval      uint8
	Banks         uint8

	pipe *Pipe
	gen  uint32
}

// NewEndpoint returns an endpoint of the device at address described by d.
func NewEndpoint(address uint8, d *EndpointDescriptor) *Endpoint {
	return &Endpoint{
		Device:        address,
		Address:       d.EndpointAddress,
		Type:          d.TransferType(),
		MaxPacketSize: d.PacketSize(),
		Interval:      d.Interval,
		Banks:         1,
	}
}

// Number returns the endpoint number.
func (e *Endpoint) Number() uint8 { return e.Address & 0x0F }

// IsIn reports whether the endpoint moves data device-to-host.
func (e *Endpoint) IsIn() bool { return e.Address&EndpointDirectionIn != 0 }

// Pipe returns the hardware pipe bound to the endpoint, or nil.
func (e *Endpoint) Pipe() *Pipe { return e.pipe }

// token returns the data token of the endpoint's direction.
func (e *Endpoint) token() hal.Token {
	if e.IsIn() {
		return hal.TokenIn
	}
	return hal.TokenOut
}

// open reports whether the endpoint still owns its pipe. A pipe freed with
// its device, or allocated again since, no longer belongs to the endpoint.
func (e *Endpoint) open() bool {
	p := e.pipe
	return p != nil && p.live && p.gen == e.gen
}
