package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/framebus/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "FRAMEBUS_"

// binding ties one options field to its sources.
type binding struct {
	field reflect.Value
	flag  string
	toml  string
	env   string
}

// LoadConfig fills the struct pointed to by opts with precedence
// CLI > env > TOML file. The file path is read from a string field named
// Config. Fields carry `toml:"section.key"` and `env:"KEY"` tags. Flags that
// cmd reports as changed are never overwritten.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("options must be a pointer to a struct, got %T", opts)
	}
	v = v.Elem()

	changed := changedFlags(cmd)
	bindings := make([]binding, 0, v.NumField())
	var path string
	for i := 0; i < v.NumField(); i++ {
		sf := v.Type().Field(i)
		if sf.Name == "Config" && sf.Type.Kind() == reflect.String {
			path = v.Field(i).String()
			continue
		}
		b := binding{
			field: v.Field(i),
			flag:  flagName(sf.Name),
			toml:  sf.Tag.Get("toml"),
			env:   sf.Tag.Get("env"),
		}
		if changed[b.flag] || !b.field.CanSet() {
			continue
		}
		bindings = append(bindings, b)
	}

	if path != "" {
		doc, err := readTOML(path)
		if err != nil {
			return err
		}
		for _, b := range bindings {
			if b.toml == "" {
				continue
			}
			if value, ok := lookupPath(doc, b.toml); ok {
				if err := assign(b.field, value); err != nil {
					return fmt.Errorf("%s: %w", b.toml, err)
				}
			}
		}
	}

	for _, b := range bindings {
		if b.env == "" {
			continue
		}
		raw, ok := os.LookupEnv(EnvPrefix + b.env)
		if !ok || raw == "" {
			continue
		}
		if err := assignString(b.field, raw); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, b.env, err)
		}
	}
	return nil
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = true
	})
	return changed
}

// readTOML parses path into a generic document. A missing file is not an
// error.
func readTOML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return doc, nil
}

// flagName converts "BusPayloadArenaSize" to "bus-payload-arena-size".
func flagName(field string) string {
	var sb strings.Builder
	for i, r := range field {
		if i > 0 && unicode.IsUpper(r) {
			sb.WriteByte('-')
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}

// lookupPath walks a dotted path through nested tables.
func lookupPath(doc map[string]any, path string) (any, bool) {
	keys := strings.Split(path, ".")
	table := doc
	for _, k := range keys[:len(keys)-1] {
		next, ok := table[k].(map[string]any)
		if !ok {
			return nil, false
		}
		table = next
	}
	value, ok := table[keys[len(keys)-1]]
	return value, ok
}

// assign stores a decoded TOML value into field.
func assign(field reflect.Value, value any) error {
	switch field.Kind() {
	case reflect.String:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		field.SetString(s)
	case reflect.Bool:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		i, ok := value.(int64)
		if !ok {
			return fmt.Errorf("expected integer, got %T", value)
		}
		field.SetInt(i)
	case reflect.Float64:
		switch n := value.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		default:
			return fmt.Errorf("expected number, got %T", value)
		}
	case reflect.Slice:
		items, ok := value.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("expected string array, got %T", value)
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("expected string array element, got %T", item)
			}
			out = append(out, s)
		}
		field.Set(reflect.ValueOf(out))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// assignString parses an env value into field. Slices are comma separated.
func assignString(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice of %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// LoadLoggingConfig reads the [logging] table of path. Defaults are returned
// when the file is missing or has no such table.
func LoadLoggingConfig(path string) (logging.Config, error) {
	cfg := logging.Config{Level: "info", Format: "text", Modules: map[string]string{}}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var file struct {
		Logging logging.Config `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	if file.Logging.Level != "" {
		cfg.Level = file.Logging.Level
	}
	if file.Logging.Format != "" {
		cfg.Format = file.Logging.Format
	}
	for module, level := range file.Logging.Modules {
		cfg.Modules[module] = level
	}
	return cfg, nil
}
