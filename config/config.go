// Package config loads named database configurations from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mudrockdev/mudrockdbtool/adapter"
)

const (
	DirEnv     = "DBTOOL_CONFIG_DIR"
	DefaultDir = "config"
)

var extensions = []string{".yaml", ".yml"}

// File is the on-disk layout of one configuration.
type File struct {
	Driver    string `yaml:"driver"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	SSLMode   string `yaml:"sslmode"`
	BatchSize int    `yaml:"batchSize"`
}

// Dir resolves the configuration directory: flag, then $DBTOOL_CONFIG_DIR,
// then ./config.
func Dir(flag string) string {
	if flag != "" {
		return flag
	}
	return GetEnvOrDefault(DirEnv, DefaultDir)
}

func GetEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envKey builds DBTOOL_<NAME>_<FIELD> with the name upper-cased and
// dashes and dots turned into underscores.
func envKey(name, field string) string {
	name = strings.NewReplacer("-", "_", ".", "_").Replace(strings.ToUpper(name))
	return "DBTOOL_" + name + "_" + field
}

func path(dir, name string) (string, bool) {
	for _, ext := range extensions {
		p := filepath.Join(dir, name+ext)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return filepath.Join(dir, name+extensions[0]), false
}

// Exists reports whether a configuration called name exists in dir.
func Exists(dir, name string) bool {
	_, ok := path(dir, name)
	return ok
}

// Names lists the configurations found in dir, sorted.
func Names(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read config dir: %w", err)
	}
	seen := map[string]bool{}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Load reads the configuration called name from dir, applies environment
// overrides and defaults, and validates it.
func Load(dir, name string) (adapter.Config, error) {
	p, ok := path(dir, name)
	if !ok {
		return adapter.Config{}, &adapter.ValidationError{
			Field:  "config",
			Value:  name,
			Reason: fmt.Sprintf("Failed to load configuration file: %s", p),
		}
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return adapter.Config{}, fmt.Errorf("read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return adapter.Config{}, fmt.Errorf("parse config %s: %w", p, err)
	}
	return f.resolve(dir, name)
}

func (f File) resolve(dir, name string) (adapter.Config, error) {
	f.Password = GetEnvOrDefault(envKey(name, "PASSWORD"), f.Password)
	f.Host = GetEnvOrDefault(envKey(name, "HOST"), f.Host)
	if f.Driver == "" {
		f.Driver = string(adapter.MySQL)
	}

	driver, err := adapter.ParseDialect(f.Driver)
	if err != nil {
		return adapter.Config{}, err
	}

	cfg := adapter.Config{
		Name:           name,
		Driver:         driver,
		Host:           f.Host,
		Port:           f.Port,
		Database:       f.Database,
		Schema:         f.Schema,
		Username:       f.Username,
		Password:       f.Password,
		SSLMode:        f.SSLMode,
		BatchSize:      f.BatchSize,
		CredentialsDir: dir,
	}.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return adapter.Config{}, err
	}
	return cfg, nil
}

// IsMissing reports whether err came from a configuration that does not
// exist.
func IsMissing(err error) bool {
	var verr *adapter.ValidationError
	return errors.As(err, &verr) && verr.Field == "config"
}
