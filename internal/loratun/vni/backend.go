package vni

import (
	"runtime"
)

// backendSupported - whether backend can be opened on goos
func backendSupported(backend, goos string) bool {
	switch backend {
	case BackendTUN:
		return goos == "linux"
	case BackendUTUN:
		return goos == "darwin"
	case BackendWintun, BackendTAP:
		return goos == "windows"
	}
	return false
}

// Supported - whether backend can be opened here
func Supported(backend string) bool {
	if backend == BackendAuto || backend == "" {
		return DefaultBackend() != ""
	}
	return backendSupported(backend, runtime.GOOS)
}
