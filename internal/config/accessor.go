package config

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Paths are "section.key" using the YAML tag names, e.g. "downloads.workers".

// ListPaths returns every settable path in declaration order.
func ListPaths() []string {
	var paths []string
	root := reflect.TypeOf(Config{})
	for i := 0; i < root.NumField(); i++ {
		section := root.Field(i)
		for j := 0; j < section.Type.NumField(); j++ {
			paths = append(paths, tagName(section)+"."+tagName(section.Type.Field(j)))
		}
	}
	return paths
}

// GetByPath returns the value stored at path.
func GetByPath(cfg *Config, path string) (any, error) {
	fv, err := field(cfg, path)
	if err != nil {
		return nil, err
	}
	return fv.Interface(), nil
}

// SetByPath parses value as the type of the field at path and stores it.
// allowFrom takes a comma-separated list.
func SetByPath(cfg *Config, path, value string) error {
	fv, err := field(cfg, path)
	if err != nil {
		return err
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %q is not a boolean", path, value)
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", path, value)
		}
		fv.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s: %q is not a number", path, value)
		}
		fv.SetFloat(f)
	case reflect.Slice:
		var list FlexStringList
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				list = append(list, item)
			}
		}
		fv.Set(reflect.ValueOf(list))
	default:
		return fmt.Errorf("%s: unsupported type %s", path, fv.Type())
	}
	return nil
}

func field(cfg *Config, path string) (reflect.Value, error) {
	section, key, ok := strings.Cut(path, ".")
	if !ok || key == "" || strings.Contains(key, ".") {
		return reflect.Value{}, fmt.Errorf("path must look like section.key, got %q", path)
	}
	sv, ok := lookup(reflect.ValueOf(cfg).Elem(), section)
	if !ok {
		return reflect.Value{}, fmt.Errorf("unknown config section %q", section)
	}
	fv, ok := lookup(sv, key)
	if !ok {
		return reflect.Value{}, fmt.Errorf("key not found: %s", path)
	}
	return fv, nil
}

func lookup(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tagName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tagName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	return name
}

// Sanitize returns a copy of the config with the bot token masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	c.Telegram.AllowFrom = slices.Clone(cfg.Telegram.AllowFrom)
	if c.Telegram.Token != "" {
		c.Telegram.Token = maskString(c.Telegram.Token)
	}
	return &c
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
