package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v3"

	"github.com/ardnew/uotghs/host"
	"github.com/ardnew/uotghs/host/hal"
)

func testConfig() host.Config {
	cfg := host.DefaultConfig()
	cfg.SpinLimit = 256
	cfg.Millis = func() uint32 { return 0 }
	return cfg
}

func play(t *testing.T, src string) (*Runner, string, error) {
	t.Helper()
	sc, err := LoadScenario(strings.NewReader(src))
	require.NoError(t, err)
	var out bytes.Buffer
	r, err := NewRunner(sc, testConfig(), false, nil, &out)
	require.NoError(t, err)
	err = r.Run()
	return r, out.String(), err
}

func TestKeyboardScenario(t *testing.T) {
	f, err := os.Open("testdata/keyboard.yaml")
	require.NoError(t, err)
	defer f.Close()

	sc, err := LoadScenario(f)
	require.NoError(t, err)
	assert.Equal(t, "keyboard hotplug", sc.Name)
	require.Contains(t, sc.Devices, "keyboard")
	kbd := sc.Devices["keyboard"]
	assert.Equal(t, uint16(0x1209), kbd.Vendor)
	assert.Equal(t, Speed(hal.SpeedFull), kbd.Speed)
	require.Len(t, kbd.Endpoints, 1)
	assert.Equal(t, TransferType(hal.TransferInterrupt), kbd.Endpoints[0].Type)
	assert.Equal(t, Packet{0, 0, 4, 0, 0, 0, 0, 0}, kbd.Endpoints[0].Queue[0])

	var out bytes.Buffer
	r, err := NewRunner(sc, testConfig(), false, nil, &out)
	require.NoError(t, err)
	require.NoError(t, r.Run())

	assert.Equal(t, 2, r.Monitor().Reports)
	stats := r.Host().Stats()
	assert.Equal(t, 1, stats.Enumerations)
	assert.Zero(t, stats.EnumerationFailures)
	assert.Equal(t, 1, stats.NAKExhaustions, "idle poll")
	assert.Equal(t, host.StateNoVbus, r.Host().State())

	text := out.String()
	assert.Contains(t, text, "device 1: 1209:0001")
	assert.Contains(t, text, "device 1: configured Test Keyboard")
	assert.Contains(t, text, "device 1: 00 00 04 00 00 00 00 00")
	assert.Contains(t, text, "device 1: removed Test Keyboard")
}

func TestScenarioExpectMismatch(t *testing.T) {
	_, _, err := play(t, `
steps:
  - action: poll
    expect: NoVbus
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1")
}

func TestScenarioVbusError(t *testing.T) {
	r, _, err := play(t, `
devices:
  dev: {vendor: 1, product: 2}
steps:
  - action: attach
    device: dev
    tasks: 2
    expect: Attached(Running)
  - action: vbus-error
    expect: NoVbus
`)
	require.NoError(t, err)
	assert.Empty(t, r.Host().Devices().Addresses())
}

func TestScenarioStall(t *testing.T) {
	r, out, err := play(t, `
devices:
  dev:
    endpoints:
      - {address: 0x82, type: bulk, maxPacketSize: 64, stalled: true, queue: ["cafe"]}
steps:
  - action: attach
    device: dev
  - action: poll
    tasks: 2
    expect: Attached(Running)
`)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Host().Stats().Stalls)
	assert.Equal(t, 1, r.Monitor().Reports)
	assert.Contains(t, out, "device 1: ca fe")
}

func TestLoadScenarioErrors(t *testing.T) {
	tests := map[string]string{
		"no steps":         "devices: {}\n",
		"unknown action":   "steps: [{action: jump}]\n",
		"unknown device":   "steps: [{action: attach, device: ghost}]\n",
		"unknown field":    "steps: [{action: poll, wait: 3}]\n",
		"bad speed":        "devices: {d: {speed: warp}}\nsteps: [{action: poll}]\n",
		"bad packet":       "devices: {d: {endpoints: [{address: 0x81, maxPacketSize: 8, queue: [zz]}]}}\nsteps: [{action: poll}]\n",
		"control endpoint": "devices: {d: {endpoints: [{address: 0x80, maxPacketSize: 8}]}}\nsteps: [{action: poll}]\n",
		"no packet size":   "devices: {d: {endpoints: [{address: 0x81}]}}\nsteps: [{action: poll}]\n",
		"isochronous":      "devices: {d: {endpoints: [{address: 0x81, type: isochronous, maxPacketSize: 8}]}}\nsteps: [{action: poll}]\n",
		"negative tasks":   "steps: [{action: poll, tasks: -1}]\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadScenario(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestDeviceModelBuild(t *testing.T) {
	m := DeviceModel{Speed: Speed(hal.SpeedLow), Vendor: 0x03eb, Product: 0x2404, ProductIndex: 1}
	dev := m.Build()
	assert.Equal(t, hal.SpeedLow, dev.Speed)
	assert.Equal(t, 8, dev.MaxPacketSize0())
	assert.Equal(t, uint8(1), dev.Descriptor[15])

	dev = DeviceModel{}.Build()
	assert.Equal(t, hal.SpeedFull, dev.Speed)
	assert.Equal(t, 64, dev.MaxPacketSize0())
}

func TestRenderTemplate(t *testing.T) {
	data, err := renderTemplate("yaml")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, 15, got["nak-limit"])
	assert.Equal(t, 65536, got["spin-limit"])
	assert.Equal(t, false, got["high-speed"])
	assert.Equal(t, map[string]any{"level": "warn", "format": "text"}, got["log"])
	assert.NotContains(t, got, "config")
	assert.NotContains(t, got, "scenario")

	data, err = renderTemplate("toml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "nak-limit = 15")

	data, err = renderTemplate("json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"spin-limit": 65536`)

	_, err = renderTemplate("ini")
	assert.Error(t, err)
}

func TestFlagName(t *testing.T) {
	tests := map[string]string{
		"SpinLimit": "spin-limit",
		"HighSpeed": "high-speed",
		"Stats":     "stats",
		"NAKLimit":  "nak-limit",
	}
	for in, want := range tests {
		assert.Equal(t, want, flagName(in), in)
	}
}

func TestConfigCandidatePaths(t *testing.T) {
	jsonPaths, yamlPaths, tomlPaths := configCandidatePaths("my.toml")
	require.NotEmpty(t, tomlPaths)
	assert.Equal(t, "my.toml", tomlPaths[0])
	assert.NotContains(t, jsonPaths, "my.toml")
	assert.NotContains(t, yamlPaths, "my.toml")

	jsonPaths, _, _ = configCandidatePaths("settings")
	assert.Equal(t, "settings", jsonPaths[0], "unknown extensions load as json")
}

func TestFindUserConfig(t *testing.T) {
	t.Setenv("UOTGHS_CONFIG", "")
	assert.Equal(t, "a.yaml", findUserConfig([]string{"run", "--config=a.yaml"}))
	assert.Equal(t, "b.toml", findUserConfig([]string{"--config", "b.toml", "run"}))
	assert.Empty(t, findUserConfig([]string{"run", "--config"}))

	t.Setenv("UOTGHS_CONFIG", "env.json")
	assert.Equal(t, "env.json", findUserConfig(nil))
}

func TestTransitionsCommand(t *testing.T) {
	var cli CLI
	var out bytes.Buffer
	parser, err := kong.New(&cli, kong.Name("uotghs-sim"), kong.Writers(&out, &out))
	require.NoError(t, err)
	ctx, err := parser.Parse([]string{"transitions"})
	require.NoError(t, err)
	require.NoError(t, ctx.Run())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 6*len(host.AllEvents))
	assert.Regexp(t, `^NoVbus\s+VbusPresent\s+Detached$`, lines[0])
}
