package vni

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNetAdapterJSON(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		out := `{
    "Name":  "Ethernet 3",
    "InterfaceDescription":  "TAP-Windows Adapter V9",
    "InterfaceGuid":  "{3f2a9d6e-0b1c-4e7a-9f11-2c3d4e5f6a7b}"
}`
		as, err := parseNetAdapterJSON([]byte(out))
		require.NoError(t, err)
		require.Len(t, as, 1)
		assert.Equal(t, "Ethernet 3", as[0].Name)
	})

	t.Run("array", func(t *testing.T) {
		out := `[
  {"Name": "Wi-Fi", "InterfaceDescription": "Intel Wireless", "InterfaceGuid": "{11111111-2222-3333-4444-555555555555}"},
  {"Name": "LoRa", "InterfaceDescription": "TAP-Windows Adapter V9", "InterfaceGuid": "{aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee}"}
]`
		as, err := parseNetAdapterJSON([]byte(out))
		require.NoError(t, err)
		name, guid, ok := pickTAP(as)
		require.True(t, ok)
		assert.Equal(t, "LoRa", name)
		assert.Equal(t, "{AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE}", guid)
	})

	t.Run("empty output", func(t *testing.T) {
		as, err := parseNetAdapterJSON([]byte("  \r\n"))
		require.NoError(t, err)
		_, _, ok := pickTAP(as)
		assert.False(t, ok)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := parseNetAdapterJSON([]byte("Get-NetAdapter : not recognized"))
		assert.Error(t, err)
	})
}

func TestPickTAP_FallsBackToAnyGUID(t *testing.T) {
	name, guid, ok := pickTAP([]netAdapter{
		{Name: "no guid", InterfaceDescription: "TAP"},
		{Name: "Ethernet 4", InterfaceDescription: "Virtual", InterfaceGUID: "1234"},
	})
	require.True(t, ok)
	assert.Equal(t, "Ethernet 4", name)
	assert.Equal(t, "{1234}", guid)
}

func TestParseWMICCSV(t *testing.T) {
	out := "\r\nNode,GUID,Name\r\nDESKTOP,{3F2A9D6E-0B1C-4E7A-9F11-2C3D4E5F6A7B},TAP-Windows Adapter V9\r\n"
	name, guid, ok := parseWMICCSV(out)
	require.True(t, ok)
	assert.Equal(t, "TAP-Windows Adapter V9", name)
	assert.Equal(t, "{3F2A9D6E-0B1C-4E7A-9F11-2C3D4E5F6A7B}", guid)

	_, _, ok = parseWMICCSV("Node,GUID,Name\r\n")
	assert.False(t, ok)
}

func TestTAPPaths(t *testing.T) {
	assert.Equal(t, []string{
		`\\.\Global\{ABCD}.tap`,
		`\\.\{ABCD}.tap`,
	}, tapPaths("abcd"))
}

func TestConfigTUNRequest(t *testing.T) {
	req := configTUNRequest(&Config{LocalIP: net.ParseIP("10.0.0.1"), PeerIP: net.ParseIP("10.0.0.2")})
	assert.Equal(t, []byte{10, 0, 0, 1, 10, 0, 0, 2, 255, 255, 255, 255}, req)
}
