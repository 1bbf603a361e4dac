package config

import (
	"github.com/johndauphine/retail-etl/internal/export"
	"github.com/shirou/gopsutil/v3/mem"
)

// AvailableMemoryMB returns available system memory in MB, or 4096 when it
// cannot be determined.
func AvailableMemoryMB() int64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Available == 0 {
		return 4096
	}
	return int64(vm.Available / (1024 * 1024))
}

// defaultChunkSize shrinks the chunk on small hosts so one chunk stays a
// small fraction of free memory.
func defaultChunkSize(availableMB int64) int {
	switch {
	case availableMB < 512:
		return 1000
	case availableMB < 2048:
		return 5000
	default:
		return export.DefaultChunkSize
	}
}
