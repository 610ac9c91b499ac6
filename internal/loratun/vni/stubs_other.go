//go:build !linux && !darwin && !windows

package vni

func openTUN(*Config) (Device, error)    { return nil, ErrUnsupported }
func openUTUN(*Config) (Device, error)   { return nil, ErrUnsupported }
func openWintun(*Config) (Device, error) { return nil, ErrUnsupported }
func openTAP(*Config) (Device, error)    { return nil, ErrUnsupported }
