// Package prof captures pprof profiles of host simulation runs.
//
// Profiling is compiled in only with the "profile" build tag:
//
//	go build -tags profile ./cmd/uotghs-sim
//
// Without the tag every function is a no-op and [Enabled] is false, so call
// sites stay in place at no cost.
//
// CPU profiles stream while a run is in progress:
//
//	if err := prof.StartCPU("cpu.prof"); err != nil {
//		return err
//	}
//	defer prof.StopCPU()
//
// Other profiles are point-in-time snapshots:
//
//	prof.Write(prof.ProfileHeap, "heap.prof")
package prof
