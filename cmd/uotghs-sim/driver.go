package main

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/ardnew/uotghs/host"
	"github.com/ardnew/uotghs/host/hal"
	"github.com/ardnew/uotghs/pkg"
	"github.com/ardnew/uotghs/pkg/usbid"
)

// Monitor is a class driver that takes every device, selects its first
// configuration and prints whatever arrives on its first IN endpoint.
type Monitor struct {
	names   *usbid.Database
	out     io.Writer
	devices map[uint8]*monitored

	// Reports counts packets received across all devices.
	Reports int
}

type monitored struct {
	desc       host.DeviceDescriptor
	name       string
	configured bool
	in         *host.Endpoint
	buf        []byte
}

// NewMonitor returns a monitor printing to out. names may be nil.
func NewMonitor(out io.Writer, names *usbid.Database) *Monitor {
	return &Monitor{
		names:   names,
		out:     out,
		devices: map[uint8]*monitored{},
	}
}

func (m *Monitor) describe(d *host.DeviceDescriptor) string {
	if m.names == nil {
		return fmt.Sprintf("%04x:%04x", d.VendorID, d.ProductID)
	}
	return m.names.Describe(d.VendorID, d.ProductID)
}

func (m *Monitor) WantsDevice(*host.DeviceDescriptor) bool { return true }

func (m *Monitor) AddDevice(desc *host.DeviceDescriptor, address uint8) error {
	if _, ok := m.devices[address]; ok {
		return fmt.Errorf("address %d already monitored: %w", address, pkg.ErrInvalidOperation)
	}
	d := &monitored{desc: *desc, name: m.describe(desc)}
	m.devices[address] = d
	fmt.Fprintf(m.out, "device %d: %s\n", address, d.name)
	return nil
}

func (m *Monitor) RemoveDevice(address uint8) {
	if d, ok := m.devices[address]; ok {
		fmt.Fprintf(m.out, "device %d: removed %s\n", address, d.name)
		delete(m.devices, address)
	}
}

func (m *Monitor) Tick(_ uint32, bus host.Bus) error {
	addrs := make([]uint8, 0, len(m.devices))
	for a := range m.devices {
		addrs = append(addrs, a)
	}
	slices.Sort(addrs)

	for _, addr := range addrs {
		d := m.devices[addr]
		if !d.configured {
			if err := m.configure(bus, addr, d); err != nil {
				return host.Permanent(addr, err)
			}
		}
		if d.in == nil {
			continue
		}
		if err := m.poll(bus, addr, d); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) configure(bus host.Bus, addr uint8, d *monitored) error {
	var cfg host.Configuration
	if err := host.ReadConfiguration(bus, addr, 0, &cfg); err != nil {
		return fmt.Errorf("read configuration: %w", err)
	}
	if err := host.SetConfiguration(bus, addr, cfg.Descriptor.ConfigurationValue); err != nil {
		return fmt.Errorf("set configuration: %w", err)
	}
	if product, err := host.GetString(bus, addr, d.desc.ProductIndex); err == nil && product != "" {
		d.name = product
	}
	d.configured = true

	for i := range cfg.Endpoints {
		desc := &cfg.Endpoints[i]
		typ := desc.TransferType()
		if !desc.IsIn() || (typ != hal.TransferInterrupt && typ != hal.TransferBulk) {
			continue
		}
		ep := host.NewEndpoint(addr, desc)
		if err := bus.OpenEndpoint(ep); err != nil {
			return fmt.Errorf("open endpoint 0x%02x: %w", ep.Address, err)
		}
		d.in = ep
		d.buf = make([]byte, ep.MaxPacketSize)
		pkg.LogInfo(pkg.ComponentDriver, "monitoring",
			"address", addr, "endpoint", ep.Address, "type", typ, "size", ep.MaxPacketSize)
		break
	}
	fmt.Fprintf(m.out, "device %d: configured %s\n", addr, d.name)
	return nil
}

func (m *Monitor) poll(bus host.Bus, addr uint8, d *monitored) error {
	n, err := bus.InTransfer(d.in, d.buf)
	switch {
	case err == nil:
		m.Reports++
		fmt.Fprintf(m.out, "device %d: % x\n", addr, d.buf[:n])
		return nil
	case errors.Is(err, pkg.ErrNAK):
		return nil
	case errors.Is(err, pkg.ErrStall):
		if cerr := host.ClearEndpointHalt(bus, d.in); cerr != nil {
			return host.Permanent(addr, cerr)
		}
		return host.Transient(err)
	default:
		return host.Permanent(addr, err)
	}
}
