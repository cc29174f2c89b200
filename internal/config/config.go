// Package config loads the service configuration from an optional JSON
// file on top of built-in defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"fluid-service/internal/control"
	"fluid-service/internal/path"
)

var ErrInvalid = errors.New("invalid config")

type RedisConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type PathConfig struct {
	Step                float64 `json:"step"`
	MinSpeed            float64 `json:"min_speed"`
	BrakingDeceleration float64 `json:"braking_deceleration"`
}

// Thresholds are the completion tolerances of the built-in states.
type Thresholds struct {
	TakeOffDistance        float64 `json:"take_off_distance"`
	TakeOffVelocity        float64 `json:"take_off_velocity"`
	MoveDistance           float64 `json:"move_distance"`
	DefaultTakeOffAltitude float64 `json:"default_take_off_altitude"`
	LandVelocity           float64 `json:"land_velocity"`
	SetpointStreamTicks    int     `json:"setpoint_stream_ticks"`
}

type DockConfig struct {
	MaxVelocity     float64 `json:"max_velocity"`
	MaxAcceleration float64 `json:"max_acceleration"`
	Tolerance       float64 `json:"tolerance"`
}

// GPIOConfig names a single line. A negative line disables it.
type GPIOConfig struct {
	Chip      string `json:"chip"`
	Line      int    `json:"line"`
	ActiveLow bool   `json:"active_low"`
}

func (g GPIOConfig) Enabled() bool {
	return g.Line >= 0
}

type Config struct {
	RefreshRate      float64                  `json:"refresh_rate"`
	MessageQueueSize int                      `json:"message_queue_size"`
	Redis            RedisConfig              `json:"redis"`
	Controller       control.ControllerConfig `json:"controller"`
	Path             PathConfig               `json:"path"`
	Thresholds       Thresholds               `json:"thresholds"`
	Dock             DockConfig               `json:"dock"`
	TouchdownGPIO    GPIOConfig               `json:"touchdown_gpio"`
	MetricsAddr      string                   `json:"metrics_addr"`
	Realtime         bool                     `json:"realtime"`
	AutoInit         bool                     `json:"auto_init"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		RefreshRate:      30,
		MessageQueueSize: 1000,
		Redis:            RedisConfig{Host: "127.0.0.1", Port: 6379},
		Controller:       control.DefaultControllerConfig(),
		Path:             PathConfig{Step: 0.1, MinSpeed: 0.1, BrakingDeceleration: 0.5},
		Thresholds: Thresholds{
			TakeOffDistance:        0.3,
			TakeOffVelocity:        0.05,
			MoveDistance:           0.3,
			DefaultTakeOffAltitude: 1.0,
			LandVelocity:           0.2,
			SetpointStreamTicks:    100,
		},
		Dock:          DockConfig{MaxVelocity: 0.14, MaxAcceleration: 0.07, Tolerance: 0.1},
		TouchdownGPIO: GPIOConfig{Chip: "gpiochip0", Line: -1},
	}
}

// Load reads a JSON file over the defaults. Fields missing from the file
// keep their default values.
func Load(filename string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", filename, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.RefreshRate <= 0:
		return fmt.Errorf("%w: refresh_rate must be positive, got %v", ErrInvalid, c.RefreshRate)
	case c.MessageQueueSize <= 0:
		return fmt.Errorf("%w: message_queue_size must be positive, got %d", ErrInvalid, c.MessageQueueSize)
	case c.Path.Step <= 0:
		return fmt.Errorf("%w: path.step must be positive, got %v", ErrInvalid, c.Path.Step)
	case c.Path.MinSpeed < 0 || c.Controller.TargetSpeed < 0 || c.Controller.MaxSpeed < 0:
		return fmt.Errorf("%w: speeds must not be negative", ErrInvalid)
	case c.Redis.Port <= 0 || c.Redis.Port > 65535:
		return fmt.Errorf("%w: redis.port out of range, got %d", ErrInvalid, c.Redis.Port)
	case c.Dock.MaxVelocity <= 0 || c.Dock.MaxAcceleration <= 0:
		return fmt.Errorf("%w: dock limits must be positive", ErrInvalid)
	}
	return nil
}

// Overrides are command line values. Zero values leave the config alone;
// the booleans can only switch a feature on.
type Overrides struct {
	RedisHost   string
	RedisPort   int
	MetricsAddr string
	Realtime    bool
	AutoInit    bool
}

// WithOverrides applies o and validates the result.
func (c Config) WithOverrides(o Overrides) (Config, error) {
	if o.RedisHost != "" {
		c.Redis.Host = o.RedisHost
	}
	if o.RedisPort != 0 {
		c.Redis.Port = o.RedisPort
	}
	if o.MetricsAddr != "" {
		c.MetricsAddr = o.MetricsAddr
	}
	c.Realtime = c.Realtime || o.Realtime
	c.AutoInit = c.AutoInit || o.AutoInit
	return c, c.Validate()
}

// Period is the control loop period.
func (c Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.RefreshRate)
}

// PathConfig combines the sampling settings with the controller's cruise
// speed and curvature gain.
func (c Config) PathConfig() path.Config {
	return path.Config{
		CruiseSpeed:         c.Controller.TargetSpeed,
		Step:                c.Path.Step,
		MinSpeed:            c.Path.MinSpeed,
		CurvatureGain:       c.Controller.CurvatureGain,
		BrakingDeceleration: c.Path.BrakingDeceleration,
	}
}
