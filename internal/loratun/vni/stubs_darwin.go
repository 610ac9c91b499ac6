package vni

func openTUN(*Config) (Device, error)    { return nil, ErrUnsupported }
func openWintun(*Config) (Device, error) { return nil, ErrUnsupported }
func openTAP(*Config) (Device, error)    { return nil, ErrUnsupported }
