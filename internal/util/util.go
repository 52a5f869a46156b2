package util

import (
	"github.com/evdriver/evdriver/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	cfg := config.Default()
	cfg.LogLevel = zap.DebugLevel
	cfg.ModbusTCP.Host = "-.-.-.-"
	cfg.MQTT = config.MQTTConfig{
		Host: "localhost",
		Port: 1883,
	}
	return cfg
}
