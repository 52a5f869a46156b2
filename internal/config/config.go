package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Config is the process-wide configuration loaded by viper at startup.
type Config struct {
	LogLevel zapcore.Level `mapstructure:"log_level"`

	ModbusTCP   ModbusTCPConfig   `mapstructure:"modbus_tcp"`
	RegisterMap RegisterMapConfig `mapstructure:"register_map"`

	Poll        PollConfig        `mapstructure:"poll"`
	Control     ControlConfig     `mapstructure:"control"`
	Schedule    []ScheduleConfig  `mapstructure:"schedule"`
	Persistence PersistenceConfig `mapstructure:"persistence"`

	MQTT MQTTConfig `mapstructure:"mqtt"`

	Port    uint `mapstructure:"port"`
	HttpLog bool `mapstructure:"http_log"`
}

// ModbusTCPConfig addresses the single TCP connection shared by the socket
// and station logical unit-ids.
type ModbusTCPConfig struct {
	Host           string        `mapstructure:"host"`
	Port           uint          `mapstructure:"port"`
	SocketUnitID   uint8         `mapstructure:"socket_unit_id"`
	StationUnitID  uint8         `mapstructure:"station_unit_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RegisterMapConfig exposes every address named in the external register
// map as a configurable field, consumed by service.Collector's read plan
// and the Modbus actor's write path.
type RegisterMapConfig struct {
	VoltageAddr    uint16 `mapstructure:"voltage_addr"`
	CurrentAddr    uint16 `mapstructure:"current_addr"`
	PowerAddr      uint16 `mapstructure:"power_addr"`
	EnergyAddr     uint16 `mapstructure:"energy_addr"`
	StatusAddr     uint16 `mapstructure:"status_addr"`
	StationMaxAddr uint16 `mapstructure:"station_max_addr"`

	TargetCurrentAddr uint16 `mapstructure:"target_current_addr"`
	EnableAddr        uint16 `mapstructure:"enable_addr"`
	// PhaseCommandAddr is 0 when the station does not support a
	// commanded phase switch.
	PhaseCommandAddr uint16 `mapstructure:"phase_command_addr"`

	ProductNameAddr uint16 `mapstructure:"product_name_addr"`
	ProductNameLen  uint16 `mapstructure:"product_name_len"`
	SerialAddr      uint16 `mapstructure:"serial_addr"`
	SerialLen       uint16 `mapstructure:"serial_len"`
	FirmwareAddr    uint16 `mapstructure:"firmware_addr"`
	FirmwareLen     uint16 `mapstructure:"firmware_len"`

	WordOrder string `mapstructure:"word_order"` // "ABCD" or "CDAB"
}

func (r RegisterMapConfig) PhaseSwitchSupported() bool {
	return r.PhaseCommandAddr != 0
}

// PollConfig governs the Poll Scheduler's fixed-period ticker.
type PollConfig struct {
	IntervalMillis uint32 `mapstructure:"interval_millis"`
}

// ControlConfig holds the clamp bounds, grace periods, and hysteresis
// tunables the mode evaluators are constructed from.
type ControlConfig struct {
	MinSetCurrentA     float64 `mapstructure:"min_set_current_a"`
	MaxSetCurrentA     float64 `mapstructure:"max_set_current_a"`
	ConfiguredCeilingA float64 `mapstructure:"configured_ceiling_a"`

	DipGraceSec        uint32  `mapstructure:"dip_grace_sec"`
	HeartbeatSec       uint32  `mapstructure:"heartbeat_sec"`
	PhaseHysteresisSec uint32  `mapstructure:"phase_hysteresis_sec"`
	PhaseSwitchMarginA float64 `mapstructure:"phase_switch_margin_a"`
	PhaseStopHoldSec   uint32  `mapstructure:"phase_stop_hold_sec"`

	DefaultTimezone string `mapstructure:"default_timezone"`
}

// ScheduleConfig is the on-disk/config representation of a
// domain.ScheduleWindow, with Days spelled out for readability in YAML/env.
type ScheduleConfig struct {
	Active bool     `mapstructure:"active"`
	Days   []string `mapstructure:"days"` // "mon".."sun", empty means every day
	Start  string   `mapstructure:"start"`
	End    string   `mapstructure:"end"`
}

// PersistenceConfig names the on-disk atomic JSON store's path and the
// bounded closed-session history size.
type PersistenceConfig struct {
	Path       string `mapstructure:"path"`
	HistoryCap int    `mapstructure:"history_cap"`
}

type MQTTConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Validate checks the bounds that would otherwise surface as confusing
// runtime behaviour. A non-nil error aborts startup with exit code 2.
func (c *Config) Validate() error {
	if c.ModbusTCP.Host == "" {
		return errors.New("modbus_tcp.host must be set")
	}
	if c.Poll.IntervalMillis == 0 {
		return errors.New("poll.interval_millis must be > 0")
	}
	if c.Control.MinSetCurrentA <= 0 || c.Control.MaxSetCurrentA <= c.Control.MinSetCurrentA {
		return fmt.Errorf("control bounds invalid: min=%.1f max=%.1f", c.Control.MinSetCurrentA, c.Control.MaxSetCurrentA)
	}
	if c.Control.ConfiguredCeilingA > c.Control.MaxSetCurrentA || c.Control.ConfiguredCeilingA < c.Control.MinSetCurrentA {
		return fmt.Errorf("control.configured_ceiling_a %.1f out of [%.1f,%.1f]", c.Control.ConfiguredCeilingA, c.Control.MinSetCurrentA, c.Control.MaxSetCurrentA)
	}
	if c.Control.DefaultTimezone != "" {
		if _, err := time.LoadLocation(c.Control.DefaultTimezone); err != nil {
			return fmt.Errorf("control.default_timezone invalid: %w", err)
		}
	}
	for _, w := range c.Schedule {
		if _, err := time.Parse("15:04", w.Start); err != nil {
			return fmt.Errorf("schedule window start %q invalid: %w", w.Start, err)
		}
		if _, err := time.Parse("15:04", w.End); err != nil {
			return fmt.Errorf("schedule window end %q invalid: %w", w.End, err)
		}
	}
	if c.Persistence.Path == "" {
		return errors.New("persistence.path must be set")
	}
	switch c.RegisterMap.WordOrder {
	case "", "ABCD", "CDAB":
	default:
		return fmt.Errorf("register_map.word_order must be ABCD or CDAB, got %q", c.RegisterMap.WordOrder)
	}
	if c.MQTT.BaseTopic != "" {
		if _, err := CheckMQTTTopic(c.MQTT.BaseTopic); err != nil {
			return fmt.Errorf("mqtt.base_topic: %w", err)
		}
	}
	return nil
}

func Default() Config {
	return Config{
		LogLevel: zapcore.InfoLevel,
		ModbusTCP: ModbusTCPConfig{
			Port:           502,
			SocketUnitID:   1,
			StationUnitID:  200,
			RequestTimeout: 3 * time.Second,
			ConnectTimeout: 5 * time.Second,
		},
		RegisterMap: RegisterMapConfig{WordOrder: "ABCD"},
		Poll:        PollConfig{IntervalMillis: 1000},
		Control: ControlConfig{
			MinSetCurrentA:     6.0,
			MaxSetCurrentA:     32.0,
			ConfiguredCeilingA: 32.0,
			DipGraceSec:        90,
			HeartbeatSec:       30,
			PhaseHysteresisSec: 60,
			PhaseSwitchMarginA: 1.0,
			PhaseStopHoldSec:   5,
			DefaultTimezone:    "UTC",
		},
		Persistence: PersistenceConfig{
			Path:       "evdriver_state.json",
			HistoryCap: 100,
		},
		Port: 8080,
	}
}
