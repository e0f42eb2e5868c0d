//go:build linux

package main

import (
	"syscall"
)

const SupportsSettingPriorities = true

// backups compete with the live database for CPU, so be as nice as possible
func SetLowCpuPriority() error {
	// pid 0 means self
	return syscall.Setpriority(syscall.PRIO_PROCESS, 0, 19)
}
