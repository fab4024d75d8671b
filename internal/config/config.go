// Package config loads the supervisor configuration with viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/supervisr/internal/auth"
	"github.com/loykin/supervisr/internal/env"
	"github.com/loykin/supervisr/internal/logger"
	"github.com/loykin/supervisr/internal/manager"
	"github.com/loykin/supervisr/internal/process"
	"github.com/loykin/supervisr/internal/registry"
	"github.com/loykin/supervisr/internal/strategy"
	itls "github.com/loykin/supervisr/internal/tls"
)

// EnvPrefix is the prefix of environment variables overriding file values,
// e.g. SUPERVISR_SUPERVISOR_MAX_RESTARTS.
const EnvPrefix = "SUPERVISR"

var ErrInvalid = errors.New("invalid config")

// Config represents the top-level TOML structure.
type Config struct {
	Supervisor  SupervisorConfig `mapstructure:"supervisor"`
	Log         logger.Config    `mapstructure:"log"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	Server      ServerConfig     `mapstructure:"server"`
	History     HistoryConfig    `mapstructure:"history"`
	Env         []string         `mapstructure:"env"`
	EnvFiles    []string         `mapstructure:"env_files"`
	UseOSEnv    bool             `mapstructure:"use_os_env"`
	ProgramsDir string           `mapstructure:"programs_dir"`
	Processes   []ProcConfig     `mapstructure:"processes"`

	// path of the file the config was read from, empty for defaults only
	path string
}

type SupervisorConfig struct {
	MaxRestarts  int           `mapstructure:"max_restarts"`
	MaxTime      time.Duration `mapstructure:"max_time"`
	Strategy     string        `mapstructure:"strategy"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`

	// ProcessMetrics adds CPU and memory gauges for supervised commands.
	ProcessMetrics bool `mapstructure:"process_metrics"`
}

type ServerConfig struct {
	Enabled  bool        `mapstructure:"enabled"`
	Listen   string      `mapstructure:"listen"`
	BasePath string      `mapstructure:"base_path"`
	TLS      itls.Config `mapstructure:"tls"`
	Auth     auth.Config `mapstructure:"auth"`
}

type HistoryConfig struct {
	// Sinks are DSNs understood by history/factory.
	Sinks []string `mapstructure:"sinks"`
}

type ProcConfig struct {
	Name      string             `mapstructure:"name"`
	Command   string             `mapstructure:"command"`
	WorkDir   string             `mapstructure:"work_dir"`
	Env       []string           `mapstructure:"env"`
	DependsOn []string           `mapstructure:"depends_on"`
	Log       *logger.FileConfig `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("supervisor.max_restarts", manager.DefaultMaxRestarts)
	v.SetDefault("supervisor.max_time", manager.DefaultMaxTime)
	v.SetDefault("supervisor.strategy", strategy.OneForOne.String())
	v.SetDefault("supervisor.poll_interval", manager.DefaultPollInterval)
	v.SetDefault("log.slog.level", logger.LevelInfo)
	v.SetDefault("log.slog.format", logger.FormatText)
	v.SetDefault("log.slog.timestamps", true)
	v.SetDefault("metrics.listen", ":9090")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("use_os_env", true)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the configuration used when no file is given.
// Environment overrides still apply.
func Default() (*Config, error) {
	return Load("")
}

// Load reads path (TOML unless the extension says otherwise) on top of the
// defaults and validates the result.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("toml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.path = path
	if err := c.loadPrograms(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// loadPrograms appends one process per file found in the programs directory.
// A relative directory is resolved against the config file; with no setting,
// a "programs" directory next to the config file is used when it exists.
func (c *Config) loadPrograms() error {
	dir := c.ProgramsDir
	explicit := dir != ""
	if !explicit {
		if c.path == "" {
			return nil
		}
		dir = "programs"
	}
	if !filepath.IsAbs(dir) && c.path != "" {
		dir = filepath.Join(filepath.Dir(c.path), dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read programs dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".toml", ".yaml", ".yml", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		pv := viper.New()
		pv.SetConfigFile(filepath.Join(dir, n))
		if err := pv.ReadInConfig(); err != nil {
			return fmt.Errorf("read program %s: %w", n, err)
		}
		var pc ProcConfig
		if err := pv.Unmarshal(&pc); err != nil {
			return fmt.Errorf("decode program %s: %w", n, err)
		}
		c.Processes = append(c.Processes, pc)
	}
	return nil
}

// Validate checks supervisor limits and process entries.
func (c *Config) Validate() error {
	if _, err := c.ManagerConfig(); err != nil {
		return err
	}
	if c.Server.Auth.Enabled && len(c.Server.Auth.Users) == 0 {
		return fmt.Errorf("%w: server.auth is enabled without users", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Processes))
	for i, p := range c.Processes {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("%w: process #%d requires name", ErrInvalid, i+1)
		}
		if err := registry.ValidateName(name); err != nil {
			return fmt.Errorf("%w: process #%d: %w", ErrInvalid, i+1, err)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate process %s", ErrInvalid, name)
		}
		seen[name] = true
		if strings.TrimSpace(p.Command) == "" {
			return fmt.Errorf("%w: process %s requires command", ErrInvalid, name)
		}
		for _, d := range p.DependsOn {
			if err := registry.ValidateName(strings.TrimSpace(d)); err != nil {
				return fmt.Errorf("%w: process %s depends_on: %w", ErrInvalid, name, err)
			}
		}
	}
	return nil
}

// ManagerConfig converts the [supervisor] section.
func (c *Config) ManagerConfig() (manager.Config, error) {
	s, err := strategy.Parse(c.Supervisor.Strategy)
	if err != nil {
		return manager.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	mc := manager.Config{
		MaxRestarts:  c.Supervisor.MaxRestarts,
		MaxTime:      c.Supervisor.MaxTime,
		Strategy:     s,
		PollInterval: c.Supervisor.PollInterval,
	}
	if err := mc.Validate(); err != nil {
		return manager.Config{}, err
	}
	return mc, nil
}

// GlobalEnv merges the shared environment: OS env (when use_os_env), then
// env_files in order, then the top-level env list.
func (c *Config) GlobalEnv() (*env.Env, error) {
	e := env.New().WithOS(c.UseOSEnv)
	for _, p := range c.EnvFiles {
		if c.path != "" && !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(c.path), p)
		}
		vars, err := env.LoadFile(p)
		if err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
		for k, val := range vars {
			e = e.WithSet(k, val)
		}
	}
	return e.WithPairs(c.Env), nil
}

// Commands builds one process.Command per configured process, in file order.
// Names are trimmed the same way Validate and Dependencies trim them.
// Process log settings override the top-level [log.file] ones field by field.
func (c *Config) Commands() ([]process.Command, error) {
	genv, err := c.GlobalEnv()
	if err != nil {
		return nil, err
	}
	out := make([]process.Command, 0, len(c.Processes))
	for _, p := range c.Processes {
		out = append(out, process.Command{
			Name:    strings.TrimSpace(p.Name),
			Script:  p.Command,
			WorkDir: p.WorkDir,
			Env:     genv.Merge(p.Env),
			Log:     mergeLog(c.Log.File, p.Log),
		})
	}
	return out, nil
}

// Dependencies returns every (process, dependsOn) pair in file order.
func (c *Config) Dependencies() [][2]string {
	var out [][2]string
	for _, p := range c.Processes {
		for _, d := range p.DependsOn {
			out = append(out, [2]string{strings.TrimSpace(p.Name), strings.TrimSpace(d)})
		}
	}
	return out
}

func mergeLog(base logger.FileConfig, p *logger.FileConfig) logger.FileConfig {
	// the supervisor's own log file is never shared with a process
	base.Path = ""
	if p == nil {
		return base
	}
	if p.Dir != "" {
		base.Dir = p.Dir
	}
	if p.StdoutPath != "" {
		base.StdoutPath = p.StdoutPath
	}
	if p.StderrPath != "" {
		base.StderrPath = p.StderrPath
	}
	if p.MaxSizeMB != 0 {
		base.MaxSizeMB = p.MaxSizeMB
	}
	if p.MaxBackups != 0 {
		base.MaxBackups = p.MaxBackups
	}
	if p.MaxAgeDays != 0 {
		base.MaxAgeDays = p.MaxAgeDays
	}
	if p.Compress {
		base.Compress = true
	}
	return base
}
