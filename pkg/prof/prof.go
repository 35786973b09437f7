//go:build profile

package prof

import (
	"io"
	"os"
	"runtime/pprof"
	"sync"

	"github.com/ardnew/uotghs/pkg"
)

// Enabled reports whether profiling is compiled in.
const Enabled = true

var (
	cpuMu     sync.Mutex
	cpuFile   *os.File
	cpuActive bool
)

// StartCPU starts CPU profiling into the file at path.
func StartCPU(path string) error {
	cpuMu.Lock()
	defer cpuMu.Unlock()
	if cpuActive {
		return ErrCPUProfileActive
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return err
	}
	cpuFile, cpuActive = f, true
	pkg.LogDebug(pkg.ComponentSim, "cpu profile started", "path", path)
	return nil
}

// StopCPU stops CPU profiling and closes the profile file.
func StopCPU() error {
	cpuMu.Lock()
	defer cpuMu.Unlock()
	if !cpuActive {
		return ErrCPUProfileNotActive
	}
	pprof.StopCPUProfile()
	err := cpuFile.Close()
	cpuFile, cpuActive = nil, false
	return err
}

// CPUActive reports whether a CPU profile is being recorded.
func CPUActive() bool {
	cpuMu.Lock()
	defer cpuMu.Unlock()
	return cpuActive
}

// Write writes snapshot profile p to the file at path.
func Write(p Profile, path string) error {
	if !p.Snapshot() {
		return ErrInvalidProfile
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTo(p, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteTo writes snapshot profile p to w in protobuf form.
func WriteTo(p Profile, w io.Writer) error {
	if !p.Snapshot() {
		return ErrInvalidProfile
	}
	lp := pprof.Lookup(string(p))
	if lp == nil {
		return ErrInvalidProfile
	}
	return lp.WriteTo(w, 0)
}
