// Package config 读取 bwtop 的配置：YAML 文件 + BWTOP_ 前缀的环境变量 + 命令行覆盖。
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

const (
	// FileName 是默认配置文件名 (不含扩展名)
	FileName = "bwtop"
	// EnvPrefix 是环境变量前缀，例如 BWTOP_UI_MODE
	EnvPrefix = "BWTOP"

	ModeAuto  = "auto"
	ModeTUI   = "tui"
	ModePlain = "plain"
)

type Config struct {
	UI      UIConfig      `mapstructure:"ui" yaml:"ui"`
	Probe   ProbeConfig   `mapstructure:"probe" yaml:"probe"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

type UIConfig struct {
	Mode string `mapstructure:"mode" yaml:"mode"`
}

type ProbeConfig struct {
	// Object 是编译好的 BPF 对象文件路径
	Object   string        `mapstructure:"object" yaml:"object"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// Device 内核没有归属网卡时显示的名字
	Device string `mapstructure:"device" yaml:"device"`
}

type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Level      string `mapstructure:"level" yaml:"level"`
}

type MetricsConfig struct {
	// Listen 为空时不启动 /metrics
	Listen string `mapstructure:"listen" yaml:"listen"`
}

func Default() *Config {
	return &Config{
		UI: UIConfig{Mode: ModeAuto},
		Probe: ProbeConfig{
			Object:   "/usr/lib/bwtop/netmon.bpf.o",
			Interval: time.Second,
			Device:   "any",
		},
		Log: LogConfig{
			File:       filepath.Join(os.TempDir(), "bwtop.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			Level:      "info",
		},
	}
}

// Load 读取配置。path 为空时依次查找 ./bwtop.yaml 和 ~/.config/bwtop/config.yaml，
// 都不存在就只用默认值和环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "bwtop"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !xerrors.As(err, &notFound) {
			return nil, xerrors.Errorf("read config: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, xerrors.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("ui.mode", d.UI.Mode)
	v.SetDefault("probe.object", d.Probe.Object)
	v.SetDefault("probe.interval", d.Probe.Interval.String())
	v.SetDefault("probe.device", d.Probe.Device)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
}

func (c *Config) Validate() error {
	switch c.UI.Mode {
	case ModeAuto, ModeTUI, ModePlain:
	default:
		return xerrors.Errorf("invalid ui.mode %q: want auto, tui or plain", c.UI.Mode)
	}
	if c.Probe.Interval <= 0 {
		return xerrors.Errorf("invalid probe.interval %s: must be positive", c.Probe.Interval)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return xerrors.Errorf("invalid log.level %q", c.Log.Level)
	}
	return nil
}

// YAML 输出当前生效的配置，时长写成 "1s" 这样的字符串
func (c *Config) YAML() ([]byte, error) {
	type probe struct {
		Object   string `yaml:"object"`
		Interval string `yaml:"interval"`
		Device   string `yaml:"device"`
	}
	out := struct {
		UI      UIConfig      `yaml:"ui"`
		Probe   probe         `yaml:"probe"`
		Log     LogConfig     `yaml:"log"`
		Metrics MetricsConfig `yaml:"metrics"`
	}{
		UI: c.UI,
		Probe: probe{
			Object:   c.Probe.Object,
			Interval: c.Probe.Interval.String(),
			Device:   c.Probe.Device,
		},
		Log:     c.Log,
		Metrics: c.Metrics,
	}
	b, err := yaml.Marshal(out)
	if err != nil {
		return nil, xerrors.Errorf("encode config: %w", err)
	}
	return b, nil
}
