package main

// helper to watch memory growth between batches

import (
	"syscall"
)

// usedRAM returns used main memory in KiB.
//
// Ref. http://man7.org/linux/man-pages/man2/sysinfo.2.html
func usedRAM() (uint64, bool) {
	si := &syscall.Sysinfo_t{}
	if err := syscall.Sysinfo(si); err != nil {
		return 0, false
	}

	unit := uint64(si.Unit) * 1024 // kB
	total := uint64(si.Totalram) / unit
	free := uint64(si.Freeram) / unit

	return total - free, true
}
