package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"
)

// configCandidatePaths returns the configuration files tried per loader.
// A user path is routed by extension and takes priority over the working
// directory and the user config directory.
func configCandidatePaths(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	if userPath != "" {
		switch filepath.Ext(userPath) {
		case ".yaml", ".yml":
			yamlPaths = append(yamlPaths, userPath)
		case ".toml":
			tomlPaths = append(tomlPaths, userPath)
		default:
			jsonPaths = append(jsonPaths, userPath)
		}
	}
	dirs := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, "uotghs"))
	}
	for _, dir := range dirs {
		base := filepath.Join(dir, "uotghs-sim")
		jsonPaths = append(jsonPaths, base+".json")
		yamlPaths = append(yamlPaths, base+".yaml", base+".yml")
		tomlPaths = append(tomlPaths, base+".toml")
	}
	return jsonPaths, yamlPaths, tomlPaths
}

// TemplateCmd writes a configuration file holding every flag default.
type TemplateCmd struct {
	Format string `help:"Output format" enum:"json,yaml,toml" default:"yaml"`
	Output string `help:"Destination file (defaults to uotghs-sim.<format>)" placeholder:"PATH"`
	Force  bool   `help:"Overwrite an existing file"`
}

func (c *TemplateCmd) Run(ctx *kong.Context) error {
	data, err := renderTemplate(c.Format)
	if err != nil {
		return err
	}
	dest := c.Output
	if dest == "" {
		dest = "uotghs-sim." + c.Format
	}
	if dest == "-" {
		_, err = ctx.Stdout.Write(data)
		return err
	}
	if !c.Force {
		if _, err := os.Stat(dest); err == nil {
			return errors.New("destination exists; use --force to overwrite")
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

// renderTemplate encodes the configurable flags of CLI in format.
func renderTemplate(format string) ([]byte, error) {
	root := map[string]any{}
	collectDefaults(root, reflect.TypeOf(CLI{}))
	collectDefaults(root, reflect.TypeOf(RunCmd{}))
	delete(root, "config")

	switch format {
	case "json":
		return json.MarshalIndent(root, "", "  ")
	case "yaml":
		return yaml.Marshal(root)
	case "toml":
		return toml.Marshal(root)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// collectDefaults adds a key per flag of t. Embedded groups become nested
// maps named by their prefix; commands and positional arguments are skipped.
func collectDefaults(out map[string]any, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if _, ok := f.Tag.Lookup("cmd"); ok {
			continue
		}
		if _, ok := f.Tag.Lookup("arg"); ok {
			continue
		}
		if _, ok := f.Tag.Lookup("embed"); ok {
			sub := map[string]any{}
			collectDefaults(sub, f.Type)
			out[strings.TrimSuffix(f.Tag.Get("prefix"), ".")] = sub
			continue
		}
		name := f.Tag.Get("name")
		if name == "" {
			name = flagName(f.Name)
		}
		out[name] = defaultValue(f.Type, f.Tag.Get("default"))
	}
}

// flagName converts a Go field name to kong's hyphenated flag name.
func flagName(s string) string {
	var b strings.Builder
	r := []rune(s)
	for i, c := range r {
		upper := c >= 'A' && c <= 'Z'
		if upper && i > 0 && (r[i-1] < 'A' || r[i-1] > 'Z' || (i+1 < len(r) && r[i+1] >= 'a' && r[i+1] <= 'z')) {
			b.WriteByte('-')
		}
		if upper {
			c += 'a' - 'A'
		}
		b.WriteRune(c)
	}
	return b.String()
}

func defaultValue(t reflect.Type, def string) any {
	switch t.Kind() {
	case reflect.Bool:
		b, _ := strconv.ParseBool(def)
		return b
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, _ := strconv.ParseInt(def, 10, 64)
		return n
	case reflect.Slice:
		if def == "" {
			return []string{}
		}
		return strings.Split(def, ",")
	default:
		return def
	}
}
