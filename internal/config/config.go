package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"psu-controller/internal/channel"
	"psu-controller/pkg/protocol"
)

var ErrInvalid = errors.New("配置无效")

type Config struct {
	Instrument InstrumentConfig          `yaml:"instrument"`
	Sync       SyncConfig                `yaml:"sync"`
	Channels   map[string]channel.Bounds `yaml:"channels"`
	Redis      RedisConfig               `yaml:"redis"`
	Log        LogConfig                 `yaml:"log"`
	Monitor    MonitorConfig             `yaml:"monitor"`
}

type InstrumentConfig struct {
	Address      string        `yaml:"address"`
	Timeout      time.Duration `yaml:"timeout"`
	Manufacturer string        `yaml:"manufacturer"`
	Model        string        `yaml:"model"`
}

type SyncConfig struct {
	RefreshRate   time.Duration `yaml:"refresh_rate"`
	FrameInterval time.Duration `yaml:"frame_interval"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	Channel  string        `yaml:"channel"`
	History  int64         `yaml:"history"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitorConfig struct {
	Enabled     bool `yaml:"enabled"`
	MetricsPort int  `yaml:"metrics_port"`
}

// LoadConfig 加载配置文件，未设置的字段保留默认值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Instrument: InstrumentConfig{
			Address:      fmt.Sprintf("localhost:%d", protocol.DefaultPort),
			Timeout:      2 * time.Second,
			Manufacturer: protocol.Manufacturer,
			Model:        protocol.Model,
		},
		Sync: SyncConfig{
			RefreshRate:   200 * time.Millisecond,
			FrameInterval: 16 * time.Millisecond,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 4,
			Channel:  "psu_telemetry",
			History:  1000,
			Timeout:  100 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Monitor: MonitorConfig{
			Enabled:     false,
			MetricsPort: 9090,
		},
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Instrument.Address == "" {
		return fmt.Errorf("%w: instrument.address 为空", ErrInvalid)
	}
	if c.Instrument.Timeout <= 0 {
		return fmt.Errorf("%w: instrument.timeout 必须大于 0", ErrInvalid)
	}
	if c.Sync.RefreshRate <= 0 {
		return fmt.Errorf("%w: sync.refresh_rate 必须大于 0", ErrInvalid)
	}
	if c.Sync.FrameInterval <= 0 {
		return fmt.Errorf("%w: sync.frame_interval 必须大于 0", ErrInvalid)
	}
	if _, err := c.BoundsOverrides(); err != nil {
		return err
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr 为空", ErrInvalid)
	}
	return nil
}

// BoundsOverrides 将 channels 段转换为通道安全范围覆盖，覆盖只能收窄硬件范围
func (c *Config) BoundsOverrides() (map[channel.ID]channel.Bounds, error) {
	out := make(map[channel.ID]channel.Bounds, len(c.Channels))
	for name, b := range c.Channels {
		id, err := channel.ParseID(name)
		if err != nil {
			return nil, fmt.Errorf("%w: channels.%s: %v", ErrInvalid, name, err)
		}
		if b.Voltage.Min > b.Voltage.Max || b.Current.Min > b.Current.Max {
			return nil, fmt.Errorf("%w: channels.%s 范围上下限颠倒", ErrInvalid, name)
		}
		if hw := channel.DefaultBounds(id); !b.Within(hw) {
			return nil, fmt.Errorf("%w: channels.%s 超出硬件范围 %g-%gV %g-%gA", ErrInvalid, name,
				hw.Voltage.Min, hw.Voltage.Max, hw.Current.Min, hw.Current.Max)
		}
		out[id] = b
	}
	return out, nil
}
