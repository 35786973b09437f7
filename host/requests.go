package host

import (
	"fmt"
	"unicode/utf16"

	"github.com/ardnew/uotghs/host/hal"
	"github.com/ardnew/uotghs/pkg"
)

// GetDescriptor reads descriptor typ/index from the device at address into
// buf. langID selects the language of string descriptors.
func GetDescriptor(bus Bus, address, typ, index uint8, langID uint16, buf []byte) (int, error) {
	setup := hal.SetupPacket{
		RequestType: RequestTypeIn | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestGetDescriptor,
		Value:       uint16(typ)<<8 | uint16(index),
		Index:       langID,
		Length:      uint16(len(buf)),
	}
	return bus.ControlTransfer(address, setup, buf)
}

// SetAddress assigns newAddress to the device currently at address.
func SetAddress(bus Bus, address, newAddress uint8) error {
	_, err := bus.ControlTransfer(address, hal.SetupPacket{
		RequestType: RequestTypeOut | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestSetAddress,
		Value:       uint16(newAddress),
	}, nil)
	return err
}

// SetConfiguration selects configuration value on the device.
func SetConfiguration(bus Bus, address, value uint8) error {
	_, err := bus.ControlTransfer(address, hal.SetupPacket{
		RequestType: RequestTypeOut | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestSetConfiguration,
		Value:       uint16(value),
	}, nil)
	return err
}

// GetStatus reads the status word of a device, interface or endpoint.
// recipient is one of the RequestType recipient values.
func GetStatus(bus Bus, address, recipient uint8, index uint16) (uint16, error) {
	var buf [2]byte
	n, err := bus.ControlTransfer(address, hal.SetupPacket{
		RequestType: RequestTypeIn | RequestTypeStandard | recipient,
		Request:     RequestGetStatus,
		Index:       index,
		Length:      2,
	}, buf[:])
	if err != nil {
		return 0, err
	}
	if n < 2 {
		return 0, pkg.ErrDescriptorTooShort
	}
	return le16(buf[:]), nil
}

// ClearEndpointHalt clears the halt feature of ep. When bus is a *Host the
// endpoint's data toggle is reset as well.
func ClearEndpointHalt(bus Bus, ep *Endpoint) error {
	_, err := bus.ControlTransfer(ep.Device, hal.SetupPacket{
		RequestType: RequestTypeOut | RequestTypeStandard | RequestTypeEndpoint,
		Request:     RequestClearFeature,
		Value:       FeatureEndpointHalt,
		Index:       uint16(ep.Address),
	}, nil)
	if err != nil {
		return err
	}
	if h, ok := bus.(*Host); ok && ep.open() {
		return h.ResetEndpoint(ep)
	}
	return nil
}

// GetString reads string descriptor index in US English. Index 0 has no
// string and reports an empty one.
func GetString(bus Bus, address, index uint8) (string, error) {
	if index == 0 {
		return "", nil
	}
	var buf [255]byte
	n, err := GetDescriptor(bus, address, DescriptorTypeString, index, LangIDUSEnglish, buf[:])
	if err != nil {
		return "", err
	}
	if n < 2 || buf[1] != DescriptorTypeString {
		return "", fmt.Errorf("string %d: %w", index, pkg.ErrDescriptorTypeMismatch)
	}
	n = min(n, int(buf[0]))
	if n < 2 {
		return "", fmt.Errorf("string %d: %w", index, pkg.ErrDescriptorTooShort)
	}
	units := make([]uint16, 0, (n-2)/2)
	for i := 2; i+1 < n; i += 2 {
		units = append(units, le16(buf[i:]))
	}
	return string(utf16.Decode(units)), nil
}

// ReadConfiguration reads configuration index of the device and parses its
// descriptor tree into out. The header is read first to learn the total
// length, which is capped at MaxDescriptorSize.
func ReadConfiguration(bus Bus, address, index uint8, out *Configuration) error {
	var hdr [ConfigurationDescriptorSize]byte
	n, err := GetDescriptor(bus, address, DescriptorTypeConfiguration, index, 0, hdr[:])
	if err != nil {
		return err
	}
	if n < ConfigurationDescriptorSize {
		return fmt.Errorf("configuration %d: %w", index, pkg.ErrDescriptorTooShort)
	}
	if hdr[1] != DescriptorTypeConfiguration {
		return fmt.Errorf("configuration %d: %w", index, pkg.ErrDescriptorTypeMismatch)
	}

	total := min(int(le16(hdr[2:])), MaxDescriptorSize)
	buf := make([]byte, total)
	if n, err = GetDescriptor(bus, address, DescriptorTypeConfiguration, index, 0, buf); err != nil {
		return err
	}
	if !ParseConfiguration(buf[:n], out) {
		return fmt.Errorf("configuration %d: %w", index, pkg.ErrDescriptorTooShort)
	}
	return nil
}
