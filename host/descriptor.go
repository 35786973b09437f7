package host

import "github.com/ardnew/uotghs/host/hal"

// Fixed limits of the controller and the host's tables.
const (
	// MaxDevices is the number of device address slots (addresses 1..4).
	MaxDevices = 4

	// EventCapacity is the capacity of the interrupt event channel.
	EventCapacity = 8

	// NAKLimit is the default number of NAKs a token may receive before the
	// transaction is abandoned.
	NAKLimit = 15

	// MaxInterfacesPerConfiguration is the maximum interfaces kept per parsed
	// configuration.
	MaxInterfacesPerConfiguration = 8

	// MaxEndpointsPerConfiguration is the maximum endpoints kept per parsed
	// configuration.
	MaxEndpointsPerConfiguration = 16

	// MaxDescriptorSize is the largest configuration tree read by
	// ReadConfiguration.
	MaxDescriptorSize = 512
)

// Endpoint directions.
const (
	EndpointDirectionOut = 0x00 // Host to device
	EndpointDirectionIn  = 0x80 // Device to host
)

// Descriptor types.
const (
	DescriptorTypeDevice               = 0x01
	DescriptorTypeConfiguration        = 0x02
	DescriptorTypeString               = 0x03
	DescriptorTypeInterface            = 0x04
	DescriptorTypeEndpoint             = 0x05
	DescriptorTypeDeviceQualifier      = 0x06
	DescriptorTypeInterfaceAssociation = 0x0B
)

// Standard request codes.
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
)

// Request types (bmRequestType).
const (
	RequestTypeOut       = 0x00 // Host to device
	RequestTypeIn        = 0x80 // Device to host
	RequestTypeStandard  = 0x00 // Standard request
	RequestTypeClass     = 0x20 // Class-specific request
	RequestTypeVendor    = 0x40 // Vendor-specific request
	RequestTypeDevice    = 0x00 // Recipient: device
	RequestTypeInterface = 0x01 // Recipient: interface
	RequestTypeEndpoint  = 0x02 // Recipient: endpoint
)

// Feature selectors.
const (
	FeatureEndpointHalt = 0x00
)

// LangIDUSEnglish is the default language ID.
const LangIDUSEnglish = 0x0409

// DeviceDescriptor represents a USB device descriptor.
type DeviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// DeviceDescriptorSize is the size of a device descriptor.
const DeviceDescriptorSize = 18

// ParseDeviceDescriptor parses a device descriptor from data.
func ParseDeviceDescriptor(data []byte, out *DeviceDescriptor) bool {
	if len(data) < DeviceDescriptorSize || data[1] != DescriptorTypeDevice {
		return false
	}
	out.Length = data[0]
	out.DescriptorType = data[1]
	out.USBVersion = le16(data[2:])
	out.DeviceClass = data[4]
	out.DeviceSubClass = data[5]
	out.DeviceProtocol = data[6]
	out.MaxPacketSize0 = data[7]
	out.VendorID = le16(data[8:])
	out.ProductID = le16(data[10:])
	out.DeviceVersion = le16(data[12:])
	out.ManufacturerIndex = data[14]
	out.ProductIndex = data[15]
	out.SerialNumberIndex = data[16]
	out.NumConfigurations = data[17]
	return true
}

// ConfigurationDescriptor represents a USB configuration descriptor.
type ConfigurationDescriptor struct {
	Length             uint8
	DescriptorType     uint8
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	ConfigurationIndex uint8
	Attributes         uint8
	MaxPower           uint8
}

// ConfigurationDescriptorSize is the size of a configuration descriptor header.
const ConfigurationDescriptorSize = 9

// ParseConfigurationDescriptor parses a configuration descriptor header.
func ParseConfigurationDescriptor(data []byte, out *ConfigurationDescriptor) bool {
	if len(data) < ConfigurationDescriptorSize || data[1] != DescriptorTypeConfiguration {
		return false
	}
	out.Length = data[0]
	out.DescriptorType = data[1]
	out.TotalLength = le16(data[2:])
	out.NumInterfaces = data[4]
	out.ConfigurationValue = data[5]
	out.ConfigurationIndex = data[6]
	out.Attributes = data[7]
	out.MaxPower = data[8]
	return true
}

// InterfaceDescriptor represents a USB interface descriptor.
type InterfaceDescriptor struct {
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	InterfaceIndex    uint8
}

// InterfaceDescriptorSize is the size of an interface descriptor.
const InterfaceDescriptorSize = 9

// ParseInterfaceDescriptor parses an interface descriptor.
func ParseInterfaceDescriptor(data []byte, out *InterfaceDescriptor) bool {
	if len(data) < InterfaceDescriptorSize {
		return false
	}
	out.InterfaceNumber = data[2]
	out.AlternateSetting = data[3]
	out.NumEndpoints = data[4]
	out.InterfaceClass = data[5]
	out.InterfaceSubClass = data[6]
	out.InterfaceProtocol = data[7]
	out.InterfaceIndex = data[8]
	return true
}

// EndpointDescriptor represents a USB endpoint descriptor.
type EndpointDescriptor struct {
	EndpointAddress uint8
	Attributes      uint8
	MaxPacketSize   uint16
	Interval        uint8
}

// EndpointDescriptorSize is the size of an endpoint descriptor.
const EndpointDescriptorSize = 7

// ParseEndpointDescriptor parses an endpoint descriptor.
func ParseEndpointDescriptor(data []byte, out *EndpointDescriptor) bool {
	if len(data) < EndpointDescriptorSize {
		return false
	}
	out.EndpointAddress = data[2]
	out.Attributes = data[3]
	out.MaxPacketSize = le16(data[4:])
	out.Interval = data[6]
	return true
}

// Number returns the endpoint number (0-15).
func (e *EndpointDescriptor) Number() uint8 {
	return e.EndpointAddress & 0x0F
}

// IsIn returns true if this is an IN endpoint.
func (e *EndpointDescriptor) IsIn() bool {
	return e.EndpointAddress&EndpointDirectionIn != 0
}

// TransferType returns the endpoint's transfer type.
func (e *EndpointDescriptor) TransferType() hal.TransferType {
	return hal.TransferType(e.Attributes & 0x03)
}

// PacketSize returns the packet size without the high-bandwidth bits.
func (e *EndpointDescriptor) PacketSize() uint16 {
	return e.MaxPacketSize & 0x07FF
}

// Configuration is a parsed configuration descriptor tree.
type Configuration struct {
	Descriptor ConfigurationDescriptor
	Interfaces []InterfaceDescriptor
	Endpoints  []EndpointDescriptor
}

// Endpoint returns the first endpoint matching the transfer type and
// direction, or nil.
func (c *Configuration) Endpoint(typ hal.TransferType, in bool) *EndpointDescriptor {
	for i := range c.Endpoints {
		ep := &c.Endpoints[i]
		if ep.TransferType() == typ && ep.IsIn() == in {
			return ep
		}
	}
	return nil
}

// ParseConfiguration parses a full configuration tree. Class-specific
// descriptors are skipped. It reports false if the header is malformed.
func ParseConfiguration(data []byte, out *Configuration) bool {
	if !ParseConfigurationDescriptor(data, &out.Descriptor) {
		return false
	}
	out.Interfaces = out.Interfaces[:0]
	out.Endpoints = out.Endpoints[:0]

	end := min(len(data), int(out.Descriptor.TotalLength))
	for off := ConfigurationDescriptorSize; off+2 <= end; {
		length := int(data[off])
		if length < 2 || off+length > end {
			break
		}
		switch data[off+1] {
		case DescriptorTypeInterface:
			var iface InterfaceDescriptor
			if ParseInterfaceDescriptor(data[off:off+length], &iface) &&
				len(out.Interfaces) < MaxInterfacesPerConfiguration {
				out.Interfaces = append(out.Interfaces, iface)
			}
		case DescriptorTypeEndpoint:
			var ep EndpointDescriptor
			if ParseEndpointDescriptor(data[off:off+length], &ep) &&
				len(out.Endpoints) < MaxEndpointsPerConfiguration {
				out.Endpoints = append(out.Endpoints, ep)
			}
		}
		off += length
	}
	return true
}

func le16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
