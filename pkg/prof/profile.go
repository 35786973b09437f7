package prof

import "errors"

// Profiling errors.
var (
	ErrCPUProfileActive    = errors.New("cpu profile already active")
	ErrCPUProfileNotActive = errors.New("cpu profile not active")
	ErrInvalidProfile      = errors.New("invalid profile")
)

// Profile names a pprof profile.
type Profile string

// Profiles. ProfileCPU is only available through StartCPU.
const (
	ProfileCPU       Profile = "cpu"
	ProfileHeap      Profile = "heap"
	ProfileAllocs    Profile = "allocs"
	ProfileGoroutine Profile = "goroutine"
	ProfileBlock     Profile = "block"
	ProfileMutex     Profile = "mutex"
)

func (p Profile) String() string { return string(p) }

// Snapshot reports whether p can be written with Write.
func (p Profile) Snapshot() bool {
	switch p {
	case ProfileHeap, ProfileAllocs, ProfileGoroutine, ProfileBlock, ProfileMutex:
		return true
	}
	return false
}
