package vni

func openTUN(*Config) (Device, error)  { return nil, ErrUnsupported }
func openUTUN(*Config) (Device, error) { return nil, ErrUnsupported }
