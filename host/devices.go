package host

// DeviceTable is the pool of device address slots. Slot i holds address
// i+1; address 0 is the default address and is never stored.
type DeviceTable struct {
	slots [MaxDevices]slot
}

type slot struct {
	used  bool
	desc  DeviceDescriptor
	bound bool
	owner int // index of the owning driver in the slice given to Task
}

// Next claims the lowest free address. It reports false when every slot is
// occupied.
func (t *DeviceTable) Next() (uint8, bool) {
	for i := range t.slots {
		if !t.slots[i].used {
			t.slots[i] = slot{used: true}
			return uint8(i + 1), true
		}
	}
	return 0, false
}

// Remove frees the slot of address. It reports whether an occupied slot was
// freed.
func (t *DeviceTable) Remove(address uint8) bool {
	s := t.slot(address)
	if s == nil || !s.used {
		return false
	}
	*s = slot{}
	return true
}

// Used reports whether address is occupied.
func (t *DeviceTable) Used(address uint8) bool {
	s := t.slot(address)
	return s != nil && s.used
}

// Len returns the number of occupied slots.
func (t *DeviceTable) Len() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].used {
			n++
		}
	}
	return n
}

// Addresses returns the occupied addresses in ascending order.
func (t *DeviceTable) Addresses() []uint8 {
	var out []uint8
	for i := range t.slots {
		if t.slots[i].used {
			out = append(out, uint8(i+1))
		}
	}
	return out
}

// Descriptor returns the device descriptor recorded for address.
func (t *DeviceTable) Descriptor(address uint8) (*DeviceDescriptor, bool) {
	s := t.slot(address)
	if s == nil || !s.used {
		return nil, false
	}
	return &s.desc, true
}

// Owner returns the position of the driver owning address in the drivers
// given to Task. It reports false when no driver took the device.
func (t *DeviceTable) Owner(address uint8) (int, bool) {
	if s := t.slot(address); s != nil && s.used && s.bound {
		return s.owner, true
	}
	return 0, false
}

func (t *DeviceTable) slot(address uint8) *slot {
	if address == 0 || address > MaxDevices {
		return nil
	}
	return &t.slots[address-1]
}

func (t *DeviceTable) record(address uint8, desc *DeviceDescriptor) {
	if s := t.slot(address); s != nil && s.used {
		s.desc = *desc
	}
}

func (t *DeviceTable) bind(address uint8, owner int) {
	if s := t.slot(address); s != nil && s.used {
		s.bound = true
		s.owner = owner
	}
}
