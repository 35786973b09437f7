package host

import (
	"errors"
	"fmt"

	"github.com/ardnew/uotghs/host/hal"
	"github.com/ardnew/uotghs/pkg"
)

// TransferError is a failed transaction on a pipe.
type TransferError struct {
	Pipe  uint8
	Token hal.Token
	Err   error // pkg.ErrNAK, pkg.ErrStall, pkg.ErrProtocol or pkg.ErrTimeout
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("pipe %d %s: %v", e.Pipe, e.Token, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Is matches pkg.ErrTransfer.
func (e *TransferError) Is(target error) bool { return target == pkg.ErrTransfer }

// transact issues tok on the pipe and waits for its outcome. NAKs are
// counted against the configured limit.
func (h *Host) transact(p *Pipe, tok hal.Token) error {
	if err := h.pipes.Send(p, tok); err != nil {
		return err
	}
	fail := func(err error) error {
		return &TransferError{Pipe: p.index, Token: tok, Err: err}
	}
	naks := 0
	for spin := 0; h.cfg.SpinLimit == 0 || spin < h.cfg.SpinLimit; spin++ {
		st, err := h.pipes.Poll(p, tok)
		if err != nil {
			h.stats.Timeouts++
			return fail(errors.Unwrap(err))
		}
		switch st {
		case pkg.TransferStatusSuccess:
			return nil
		case pkg.TransferStatusStall:
			h.stats.Stalls++
			return fail(pkg.ErrStall)
		case pkg.TransferStatusError:
			return fail(pkg.ErrProtocol)
		case pkg.TransferStatusNAK:
			naks++
			if naks >= h.cfg.NAKLimit {
				h.pipes.Freeze(p)
				h.stats.NAKExhaustions++
				return fail(pkg.ErrNAK)
			}
		}
	}
	h.pipes.Freeze(p)
	h.stats.Timeouts++
	return fail(pkg.ErrTimeout)
}

// ControlTransfer runs a control transfer on the default pipe of the device
// at address. Address 0 uses the packet size pipe 0 is configured with;
// other addresses use the device's bMaxPacketSize0.
func (h *Host) ControlTransfer(address uint8, setup hal.SetupPacket, buf []byte) (int, error) {
	var mps uint16
	if address == 0 {
		p0 := &h.pipes.pipes[0]
		if !p0.live {
			return 0, fmt.Errorf("default pipe: %w", pkg.ErrInvalidOperation)
		}
		mps = p0.cfg.MaxPacketSize
	} else {
		desc, ok := h.devices.Descriptor(address)
		if !ok {
			return 0, fmt.Errorf("device %d: %w", address, pkg.ErrInvalidParameter)
		}
		mps = uint16(desc.MaxPacketSize0)
	}
	length := int(setup.Length)
	if len(buf) < length {
		return 0, fmt.Errorf("buffer of %d bytes for %d: %w", len(buf), length, pkg.ErrInvalidParameter)
	}

	p, err := h.pipes.ConfigureDefault(address, mps)
	if err != nil {
		return 0, err
	}

	var pkt [hal.SetupPacketSize]byte
	setup.MarshalTo(pkt[:])
	if err := h.pipes.Write(p, pkt[:]); err != nil {
		return 0, err
	}
	if err := h.transact(p, hal.TokenSetup); err != nil {
		return 0, err
	}

	n := 0
	switch {
	case length > 0 && setup.IsIn():
		for n < length {
			if err := h.transact(p, hal.TokenIn); err != nil {
				return n, err
			}
			k, err := h.pipes.Read(p, buf[n:length])
			if err != nil {
				return n, err
			}
			n += k
			if k < int(mps) {
				break
			}
		}
	case length > 0:
		for n < length {
			chunk := min(int(mps), length-n)
			if err := h.pipes.Write(p, buf[n:n+chunk]); err != nil {
				return n, err
			}
			if err := h.transact(p, hal.TokenOut); err != nil {
				return n, err
			}
			n += chunk
		}
	}

	if length > 0 && setup.IsIn() {
		err = h.transact(p, hal.TokenOut)
	} else if err = h.transact(p, hal.TokenIn); err == nil {
		_, err = h.pipes.Read(p, nil)
	}
	if err != nil {
		return n, err
	}
	pkg.LogDebug(pkg.ComponentPipe, "control transfer",
		"address", address,
		"request", setup.Request,
		"length", n)
	return n, nil
}

// InTransfer reads from the endpoint until a short packet arrives or buf is
// full.
func (h *Host) InTransfer(ep *Endpoint, buf []byte) (int, error) {
	if !ep.open() || !ep.IsIn() {
		return 0, fmt.Errorf("endpoint %#02x: %w", ep.Address, pkg.ErrInvalidOperation)
	}
	p := ep.pipe
	mps := int(p.cfg.MaxPacketSize)
	n := 0
	for {
		if err := h.transact(p, hal.TokenIn); err != nil {
			return n, err
		}
		k, err := h.pipes.Read(p, buf[n:])
		if err != nil {
			return n, err
		}
		n += k
		if k < mps || n >= len(buf) {
			return n, nil
		}
	}
}

// OutTransfer writes buf to the endpoint in packets of the endpoint's size.
// An empty buf sends one zero-length packet.
func (h *Host) OutTransfer(ep *Endpoint, buf []byte) (int, error) {
	if !ep.open() || ep.IsIn() {
		return 0, fmt.Errorf("endpoint %#02x: %w", ep.Address, pkg.ErrInvalidOperation)
	}
	p := ep.pipe
	mps := int(p.cfg.MaxPacketSize)
	n := 0
	for {
		chunk := min(mps, len(buf)-n)
		if err := h.pipes.Write(p, buf[n:n+chunk]); err != nil {
			return n, err
		}
		if err := h.transact(p, hal.TokenOut); err != nil {
			return n, err
		}
		n += chunk
		if n >= len(buf) {
			return n, nil
		}
	}
}

// OpenEndpoint allocates a pipe for the endpoint. Opening an open endpoint
// does nothing.
func (h *Host) OpenEndpoint(ep *Endpoint) error {
	if ep.open() {
		return nil
	}
	if !h.devices.Used(ep.Device) {
		return fmt.Errorf("device %d: %w", ep.Device, pkg.ErrInvalidParameter)
	}
	p, err := h.pipes.Alloc(PipeConfig{
		Address:       ep.Device,
		Endpoint:      ep.Number(),
		Type:          ep.Type,
		Token:         ep.token(),
		MaxPacketSize: ep.MaxPacketSize,
		Interval:      ep.Interval,
		Banks:         ep.Banks,
	})
	if err != nil {
		return err
	}
	ep.pipe = p
	ep.gen = p.gen
	return nil
}

// CloseEndpoint frees the endpoint's pipe.
func (h *Host) CloseEndpoint(ep *Endpoint) error {
	if !ep.open() {
		ep.pipe = nil
		return fmt.Errorf("endpoint %#02x: %w", ep.Address, pkg.ErrInvalidOperation)
	}
	h.pipes.Free(ep.pipe)
	ep.pipe = nil
	return nil
}

// ResetEndpoint resets the data toggle of the endpoint's pipe, as required
// after the device clears a halt.
func (h *Host) ResetEndpoint(ep *Endpoint) error {
	if !ep.open() {
		return fmt.Errorf("endpoint %#02x: %w", ep.Address, pkg.ErrInvalidOperation)
	}
	h.pipes.Reset(ep.pipe)
	return nil
}

var _ Bus = (*Host)(nil)
