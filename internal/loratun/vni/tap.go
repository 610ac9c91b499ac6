package vni

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rectcircle/loratun/tools"
	"github.com/sirupsen/logrus"
)

// ErrNoTAPAdapter - no TAP-Windows adapter is installed
var ErrNoTAPAdapter = errors.New("no TAP adapter found, install TAP-Windows and make sure an adapter exists")

const getNetAdapterScript = "Get-NetAdapter | " +
	"Where-Object { $_.InterfaceDescription -match 'TAP|tap' -or $_.Name -match 'TAP|tap' } | " +
	"Select-Object -Property Name, InterfaceDescription, InterfaceGuid | ConvertTo-Json -Depth 2"

// netAdapter - one row of Get-NetAdapter
type netAdapter struct {
	Name                 string `json:"Name"`
	InterfaceDescription string `json:"InterfaceDescription"`
	InterfaceGUID        string `json:"InterfaceGuid"`
}

// DiscoverTAP - name and GUID of the first TAP adapter, asking PowerShell then WMIC
func DiscoverTAP(ctx context.Context) (name, guid string, err error) {
	out, err := tools.RunCommand(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", getNetAdapterScript)
	if err == nil {
		adapters, perr := parseNetAdapterJSON([]byte(out))
		if perr == nil {
			if name, guid, ok := pickTAP(adapters); ok {
				return name, guid, nil
			}
		} else {
			logrus.WithError(perr).Debug("parse Get-NetAdapter output")
		}
	} else {
		logrus.WithError(err).Debug("Get-NetAdapter failed, trying wmic")
	}

	out, err = tools.RunCommand(ctx, "wmic", "nic", "where", "Description like '%TAP%'", "get", "GUID,Name", "/format:csv")
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrNoTAPAdapter, err)
	}
	if name, guid, ok := parseWMICCSV(out); ok {
		return name, guid, nil
	}
	return "", "", ErrNoTAPAdapter
}

// parseNetAdapterJSON - ConvertTo-Json emits an object for one row and an array for several
func parseNetAdapterJSON(data []byte) ([]netAdapter, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '{' {
		var a netAdapter
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, err
		}
		return []netAdapter{a}, nil
	}
	var as []netAdapter
	if err := json.Unmarshal(data, &as); err != nil {
		return nil, err
	}
	return as, nil
}

// pickTAP - first adapter with a GUID that looks like TAP, else the first with a GUID
func pickTAP(adapters []netAdapter) (name, guid string, ok bool) {
	for _, a := range adapters {
		if a.InterfaceGUID == "" {
			continue
		}
		if strings.Contains(strings.ToLower(a.InterfaceDescription), "tap") ||
			strings.Contains(strings.ToLower(a.Name), "tap") {
			return a.Name, normalizeGUID(a.InterfaceGUID), true
		}
	}
	for _, a := range adapters {
		if a.InterfaceGUID != "" {
			return a.Name, normalizeGUID(a.InterfaceGUID), true
		}
	}
	return "", "", false
}

// parseWMICCSV - "Node,GUID,Name" rows from wmic /format:csv
func parseWMICCSV(out string) (name, guid string, ok bool) {
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(strings.TrimSpace(line), ",")
		if len(parts) < 3 {
			continue
		}
		guid, name = strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2])
		if guid == "" || guid == "GUID" {
			continue
		}
		return name, normalizeGUID(guid), true
	}
	return "", "", false
}

// normalizeGUID - braces around, upper case
func normalizeGUID(guid string) string {
	guid = strings.ToUpper(strings.Trim(strings.TrimSpace(guid), "{}"))
	return "{" + guid + "}"
}

// tapPaths - device paths to try for guid, global namespace first
func tapPaths(guid string) []string {
	guid = normalizeGUID(guid)
	return []string{
		`\\.\Global\` + guid + `.tap`,
		`\\.\` + guid + `.tap`,
	}
}

// configTUNRequest - local address, remote network, remote netmask, all in network order
func configTUNRequest(cfg *Config) []byte {
	req := make([]byte, 12)
	copy(req[0:4], cfg.LocalIP.To4())
	copy(req[4:8], cfg.PeerIP.To4())
	copy(req[8:12], []byte{255, 255, 255, 255})
	return req
}
