// Command uotghs-sim runs the UOTGHS host driver against a simulated
// controller and scripted devices.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
	yaml "gopkg.in/yaml.v3"

	"github.com/ardnew/uotghs/host"
	"github.com/ardnew/uotghs/pkg"
	"github.com/ardnew/uotghs/pkg/prof"
	"github.com/ardnew/uotghs/pkg/usbid"
)

// CLI is the command line of uotghs-sim.
type CLI struct {
	Config string     `help:"Configuration file (json, yaml or toml)" env:"UOTGHS_CONFIG" placeholder:"PATH"`
	Log    LogOptions `embed:"" prefix:"log."`

	Run         RunCmd         `cmd:"" help:"Play a scenario against the simulated controller"`
	Transitions TransitionsCmd `cmd:"" help:"Print the host state transition table"`
	Template    TemplateCmd    `cmd:"" help:"Generate a configuration template"`
}

// LogOptions selects driver log output.
type LogOptions struct {
	Level  string `help:"Log level" enum:"debug,info,warn,error" default:"warn" env:"UOTGHS_LOG_LEVEL"`
	Format string `help:"Log format" enum:"text,json" default:"text"`
}

func (o LogOptions) apply(w io.Writer) error {
	level, ok := pkg.ParseLogLevel(o.Level)
	if !ok {
		return fmt.Errorf("unknown log level %q", o.Level)
	}
	format := pkg.LogFormatText
	if o.Format == "json" {
		format = pkg.LogFormatJSON
	}
	pkg.SetLogOutput(w, format)
	pkg.SetLogLevel(level)
	return nil
}

// RunCmd plays a scenario file.
type RunCmd struct {
	Scenario  string   `arg:"" type:"existingfile" help:"Scenario file (yaml)"`
	NAKLimit  int      `name:"nak-limit" help:"NAKs a token may receive before failing" default:"15"`
	SpinLimit int      `help:"Bound on status polling loops (0 polls forever)" default:"65536"`
	HighSpeed bool     `help:"Select high speed operation instead of low power"`
	USBIDs    []string `name:"usb-ids" help:"usb.ids database paths" placeholder:"PATH"`
	Stats     string   `help:"Statistics output format" enum:"text,json,yaml" default:"text"`

	CPUProfile  string `name:"cpu-profile" help:"Write a CPU profile of the run (profile builds)" placeholder:"PATH"`
	HeapProfile string `name:"heap-profile" help:"Write a heap profile after the run (profile builds)" placeholder:"PATH"`
}

func (c *RunCmd) Run(ctx *kong.Context) error {
	f, err := os.Open(c.Scenario)
	if err != nil {
		return err
	}
	sc, err := LoadScenario(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", c.Scenario, err)
	}

	var names *usbid.Database
	if db := usbid.New(); db.Load(c.USBIDs...) == nil {
		names = db
		pkg.LogInfo(pkg.ComponentSim, "usb.ids loaded", "source", db.Source(), "vendors", db.VendorCount())
	}

	cfg := host.DefaultConfig()
	cfg.NAKLimit = c.NAKLimit
	cfg.SpinLimit = c.SpinLimit

	r, err := NewRunner(sc, cfg, c.HighSpeed, names, ctx.Stdout)
	if err != nil {
		return err
	}

	if (c.CPUProfile != "" || c.HeapProfile != "") && !prof.Enabled {
		pkg.LogWarn(pkg.ComponentSim, "profiling requested but not compiled in; rebuild with -tags profile")
	}
	if c.CPUProfile != "" {
		if err := prof.StartCPU(c.CPUProfile); err != nil {
			return fmt.Errorf("cpu profile: %w", err)
		}
	}
	runErr := r.Run()
	if c.CPUProfile != "" {
		if err := prof.StopCPU(); err != nil {
			return fmt.Errorf("cpu profile: %w", err)
		}
	}
	if c.HeapProfile != "" {
		if err := prof.Write(prof.ProfileHeap, c.HeapProfile); err != nil {
			return fmt.Errorf("heap profile: %w", err)
		}
	}

	if err := writeStats(ctx.Stdout, c.Stats, r.Host().Stats(), r.Monitor().Reports); err != nil {
		return err
	}
	return runErr
}

type statsReport struct {
	host.Stats `yaml:",inline"`
	Reports    int
}

func writeStats(w io.Writer, format string, s host.Stats, reports int) error {
	rep := statsReport{Stats: s, Reports: reports}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(rep)
	}
	fmt.Fprintf(w, "events %d (stale %d, overwritten %d)\n", s.Events, s.Stale, s.Overwritten)
	fmt.Fprintf(w, "enumerations %d (failed %d)\n", s.Enumerations, s.EnumerationFailures)
	fmt.Fprintf(w, "nak exhaustions %d, stalls %d, timeouts %d\n", s.NAKExhaustions, s.Stalls, s.Timeouts)
	fmt.Fprintf(w, "permanent removals %d\n", s.PermanentRemovals)
	fmt.Fprintf(w, "reports %d\n", reports)
	return nil
}

// TransitionsCmd prints the state machine.
type TransitionsCmd struct{}

func (c *TransitionsCmd) Run(ctx *kong.Context) error {
	states := []host.State{
		host.StateNoVbus,
		host.StateDetached,
		host.StateConfiguring,
		host.StateRunning,
		host.StateTaskError,
		host.StateError,
	}
	for _, s := range states {
		for _, e := range host.AllEvents {
			next := host.Transition(s, e)
			mark := ""
			if next == s {
				mark = " (no change)"
			}
			fmt.Fprintf(ctx.Stdout, "%-22s %-22s %s%s\n", s, e, next, mark)
		}
	}
	return nil
}

func main() {
	userCfg := findUserConfig(os.Args[1:])
	jsonPaths, yamlPaths, tomlPaths := configCandidatePaths(userCfg)

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("uotghs-sim"),
		kong.Description("SAM3X UOTGHS host driver simulator"),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)
	if err := cli.Log.apply(os.Stderr); err != nil {
		ctx.FatalIfErrorf(err)
	}
	ctx.FatalIfErrorf(ctx.Run())
}

func findUserConfig(args []string) string {
	for i, a := range args {
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv("UOTGHS_CONFIG")
}
