package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/matst80/rfbhost/internal/obs"
	"github.com/spf13/viper"
)

// HostConfig describes the endpoint and its listener.
type HostConfig struct {
	// BasePort is added to Display to form the listening port.
	BasePort int `mapstructure:"base_port" default:"5900"`
	Display  int `mapstructure:"display" default:"0"`
	// DisplayName identifies the endpoint in logs and status output.
	DisplayName string `mapstructure:"display_name" default:"rfbhost"`
	// Bind restricts the listener to one interface; empty means all.
	Bind string `mapstructure:"bind" default:""`
	// Shared selects one backend for all sessions instead of one per session.
	Shared bool `mapstructure:"shared" default:"true"`
	// Transport is tcp or websocket.
	Transport string `mapstructure:"transport" default:"tcp"`
	WSPath    string `mapstructure:"ws_path" default:"/websockify"`
	// RatePerSec limits new connections per remote IP; 0 disables.
	RatePerSec int `mapstructure:"rate_per_sec" default:"0"`
	Burst      int `mapstructure:"burst" default:"5"`
	// SendBuffer sets SO_SNDBUF on accepted TCP clients; 0 keeps the default.
	SendBuffer int `mapstructure:"send_buffer" default:"0"`
	// UserTimeout drops clients whose unacknowledged data is older than this.
	UserTimeout time.Duration `mapstructure:"user_timeout" default:"0s"`
}

// StatusConfig configures the metrics and health server.
type StatusConfig struct {
	Addr string `mapstructure:"addr" default:":9100"`
}

// StateConfig selects the session presence store. Without RedisAddr an
// in-memory store is used.
type StateConfig struct {
	RedisAddr     string `mapstructure:"redis_addr" default:""`
	RedisPassword string `mapstructure:"redis_password" default:""`
	RedisDB       int    `mapstructure:"redis_db" default:"0"`
}

// Config holds all configuration for the binary.
type Config struct {
	Host   HostConfig    `mapstructure:"host"`
	Log    obs.LogConfig `mapstructure:"log"`
	Status StatusConfig  `mapstructure:"status"`
	State  StateConfig   `mapstructure:"state"`
}

const (
	TransportTCP       = "tcp"
	TransportWebsocket = "websocket"
)

// Validate rejects settings the host cannot run with.
func (c Config) Validate() error {
	switch c.Host.Transport {
	case TransportTCP, TransportWebsocket:
	default:
		return fmt.Errorf("config: unknown transport %q", c.Host.Transport)
	}
	if c.Host.Display < 0 {
		return fmt.Errorf("config: display must not be negative, got %d", c.Host.Display)
	}
	if c.Host.SendBuffer < 0 || c.Host.UserTimeout < 0 {
		return fmt.Errorf("config: socket options must not be negative")
	}
	if port := c.Host.BasePort + c.Host.Display; port < 0 || port > 65535 {
		return fmt.Errorf("config: port %d out of range", port)
	}
	return nil
}

// Load reads configuration from the environment and an optional .env file in
// dir. Environment keys are the upper-cased nested keys, e.g. HOST_BASE_PORT.
func Load(dir string) (*Config, error) {
	envPath := dir + "/.env"
	if dir == "." || dir == "" {
		envPath = ".env"
	}
	// missing .env is fine
	_ = godotenv.Load(envPath)

	v := New()
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// New returns a viper instance with every key registered and its default set.
func New() *viper.Viper {
	v := viper.New()
	bindValues(v, Config{}, "")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// bindValues walks the struct and registers a default for every
// mapstructure key so AutomaticEnv can see it.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}
		v.SetDefault(key, field.Tag.Get("default"))
	}
}
