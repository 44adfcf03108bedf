package gateway

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/beacongw/pkg/beacon"
	"github.com/robotalks/beacongw/pkg/cloud"
	"github.com/robotalks/beacongw/pkg/cloud/mqtt"
	"github.com/robotalks/beacongw/pkg/cloud/websocket"
	"github.com/robotalks/beacongw/pkg/registry"
)

func TestConfigLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
uart: /dev/ttyACM1
cloudUrl: wss://bridge.example.com/gw
telemetryPeriod: 45s
requireAuthorization: true
authorizedMacs:
  - c9-72-9c-47-6e-94
publishMode: buffer
influx:
  url: http://influx:8181
  database: beacons
`), 0644))

	conf := testConfig()
	require.NoError(t, conf.LoadFile(path))
	assert.Equal(t, "/dev/ttyACM1", conf.UART)
	assert.Equal(t, 45*time.Second, conf.TelemetryPeriod)
	assert.Equal(t, time.Hour, conf.HelloPeriod)
	assert.Equal(t, "beacons", conf.Influx.Database)
	require.NoError(t, conf.Validate())

	cc, err := conf.CloudConfig()
	require.NoError(t, err)
	assert.Equal(t, registry.Strict, cc.Policy().Mode)
	mac, _ := beacon.ParseMAC(legacyMAC)
	assert.Equal(t, mac, cc.AuthorizedMACs[0])
	assert.Equal(t, 45*time.Second, cc.TelemetryPeriod)

	tr, err := conf.NewTransport(nil)
	require.NoError(t, err)
	assert.IsType(t, &websocket.Transport{}, tr)
}

func TestConfigValidate(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.DeviceID = "" },
		func(c *Config) { c.RingCapacity = 0 },
		func(c *Config) { c.RetryDelay = 0 },
		func(c *Config) { c.BufferDepth = -1 },
		func(c *Config) { c.PublishMode = "later" },
		func(c *Config) { c.AuthorizedMACs = MACList{"nope"} },
		func(c *Config) {
			c.AuthorizedMACs = nil
			for i := 0; i <= registry.MaxDevices; i++ {
				c.AuthorizedMACs = append(c.AuthorizedMACs, "00:00:00:00:00:01")
			}
		},
	}
	for i, mutate := range cases {
		conf := testConfig()
		mutate(conf)
		assert.Error(t, conf.Validate(), "case %d", i)
	}
	assert.NoError(t, testConfig().Validate())
}

func TestConfigNewTransport(t *testing.T) {
	conf := testConfig()
	tr, err := conf.NewTransport(nil)
	require.NoError(t, err)
	assert.IsType(t, &mqtt.Transport{}, tr)

	conf.CloudURL = "http://example.com"
	_, err = conf.NewTransport(nil)
	assert.Error(t, err)
}

func TestMACListFlag(t *testing.T) {
	var l MACList
	require.NoError(t, l.Set(" 01:02:03:04:05:06, ,AA-BB-CC-DD-EE-FF"))
	assert.Equal(t, MACList{"01:02:03:04:05:06", "AA-BB-CC-DD-EE-FF"}, l)
	assert.Equal(t, "01:02:03:04:05:06,AA-BB-CC-DD-EE-FF", l.String())
}

var _ cloud.Transport = (*testTransport)(nil)
