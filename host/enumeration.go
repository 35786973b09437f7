package host

import (
	"fmt"

	"github.com/ardnew/uotghs/host/hal"
	"github.com/ardnew/uotghs/pkg"
)

// enumerate resets the attached device, reads its device descriptor,
// assigns it an address and offers it to drivers.
func (h *Host) enumerate(drivers []Driver) error {
	if err := h.busReset(); err != nil {
		return err
	}

	speed := hal.SpeedFromStatus(h.regs.Load(hal.SR))
	mps := speed.MaxPacketSize0()
	if mps == 0 {
		panic(fmt.Sprintf("host: unsupported bus speed %s", speed))
	}
	if _, err := h.pipes.ConfigureDefault(0, mps); err != nil {
		return err
	}
	pkg.LogDebug(pkg.ComponentEnum, "device reset", "speed", speed, "max_packet_size", mps)

	var desc DeviceDescriptor
	if err := h.readDeviceDescriptor(&desc); err != nil {
		return err
	}

	addr, ok := h.devices.Next()
	if !ok {
		return pkg.ErrOutOfDevices
	}
	h.devices.record(addr, &desc)
	if err := SetAddress(h, 0, addr); err != nil {
		h.devices.Remove(addr)
		return fmt.Errorf("set address %d: %w", addr, err)
	}
	pkg.LogInfo(pkg.ComponentEnum, "device addressed",
		"address", addr,
		"vendor", fmt.Sprintf("%04x", desc.VendorID),
		"product", fmt.Sprintf("%04x", desc.ProductID),
		"class", desc.DeviceClass)

	for i, d := range drivers {
		if !d.WantsDevice(&desc) {
			continue
		}
		if err := d.AddDevice(&desc, addr); err != nil {
			h.pipes.FreeAddress(addr)
			h.devices.Remove(addr)
			return fmt.Errorf("device %d: driver: %w", addr, err)
		}
		h.devices.bind(addr, i)
		pkg.LogInfo(pkg.ComponentEnum, "driver bound", "address", addr, "driver", i)
		return nil
	}
	pkg.LogInfo(pkg.ComponentEnum, "no driver for device", "address", addr)
	return nil
}

// busReset drives a USB reset and starts frame generation.
func (h *Host) busReset() error {
	r := h.regs
	hal.Set(r, hal.HSTCTRL, hal.HstctrlSOFE|hal.HstctrlRESET)
	if !hal.Wait(r, hal.HSTISR, hal.HstRST, true, h.cfg.SpinLimit) {
		hal.Clear(r, hal.HSTCTRL, hal.HstctrlRESET)
		return fmt.Errorf("bus reset: %w", pkg.ErrTimeout)
	}
	r.Store(hal.HSTICR, hal.HstRST)
	return nil
}

// readDeviceDescriptor reads the device descriptor at address 0. A device
// whose bMaxPacketSize0 is below the default size answers with one short
// packet; pipe 0 is then resized and the read repeated.
func (h *Host) readDeviceDescriptor(desc *DeviceDescriptor) error {
	var buf [DeviceDescriptorSize]byte
	n, err := GetDescriptor(h, 0, DescriptorTypeDevice, 0, 0, buf[:])
	if err != nil {
		return fmt.Errorf("device descriptor: %w", err)
	}
	if n < DeviceDescriptorSize && n >= hal.SetupPacketSize {
		mps0 := uint16(buf[7])
		pkg.LogDebug(pkg.ComponentEnum, "resizing default pipe", "max_packet_size", mps0)
		if _, err := h.pipes.ConfigureDefault(0, mps0); err != nil {
			return err
		}
		if n, err = GetDescriptor(h, 0, DescriptorTypeDevice, 0, 0, buf[:]); err != nil {
			return fmt.Errorf("device descriptor: %w", err)
		}
	}
	if n < DeviceDescriptorSize {
		return fmt.Errorf("device descriptor of %d bytes: %w", n, pkg.ErrDescriptorTooShort)
	}
	if !ParseDeviceDescriptor(buf[:n], desc) {
		return fmt.Errorf("device descriptor: %w", pkg.ErrDescriptorTypeMismatch)
	}
	return nil
}
