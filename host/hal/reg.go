package hal

// Set sets mask bits in a read/write register.
func Set(r Registers, reg Register, mask uint32) {
	r.Store(reg, r.Load(reg)|mask)
}

// Clear clears mask bits in a read/write register.
func Clear(r Registers, reg Register, mask uint32) {
	r.Store(reg, r.Load(reg)&^mask)
}

// Modify replaces the mask bits of a read/write register with value.
func Modify(r Registers, reg Register, mask, value uint32) {
	r.Store(reg, (r.Load(reg)&^mask)|(value&mask))
}

// IsSet reports whether every mask bit of a register is set.
func IsSet(r Registers, reg Register, mask uint32) bool {
	return r.Load(reg)&mask == mask
}

// Field extracts the field at pos under mask (mask already shifted).
func Field(v, mask uint32, pos uint) uint32 {
	return (v & mask) >> pos
}

// Wait polls reg until every mask bit is set (or clear, when set is false).
// A limit of zero or less polls forever; otherwise Wait gives up after limit
// reads and reports false.
func Wait(r Registers, reg Register, mask uint32, set bool, limit int) bool {
	for n := 0; limit <= 0 || n < limit; n++ {
		v := r.Load(reg) & mask
		if (set && v == mask) || (!set && v == 0) {
			return true
		}
	}
	return false
}
