package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the engine settings. Values come from defaults, an optional
// yaml file, and SEARCH_-prefixed environment variables, in rising priority.
type Config struct {
	Goroutines   int           `mapstructure:"goroutines"`
	Simulations  int64         `mapstructure:"simulations"`
	MoveTime     time.Duration `mapstructure:"move_time"`
	Cpuct        float32       `mapstructure:"cpuct"`
	DrawScore    float32       `mapstructure:"draw_score"`
	NoiseEpsilon float64       `mapstructure:"noise_epsilon"`
	NoiseAlpha   float64       `mapstructure:"noise_alpha"`
	Temperature  float64       `mapstructure:"temperature"`
	LogLevel     string        `mapstructure:"log_level"`
}

// Load reads the configuration. path may be empty to run on defaults and
// environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("goroutines", 4)
	v.SetDefault("simulations", 800)
	v.SetDefault("move_time", time.Duration(0))
	v.SetDefault("cpuct", 1.5)
	v.SetDefault("draw_score", 0.0)
	v.SetDefault("noise_epsilon", 0.0)
	v.SetDefault("noise_alpha", 0.3)
	v.SetDefault("temperature", 0.0)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("search")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if c.Goroutines <= 0 {
		return Config{}, fmt.Errorf("config: goroutines must be positive, got %d", c.Goroutines)
	}
	if c.Simulations <= 0 && c.MoveTime <= 0 {
		return Config{}, fmt.Errorf("config: need simulations or move_time")
	}
	return c, nil
}
