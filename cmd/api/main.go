package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evdriver/evdriver/internal/config"
	coreactor "github.com/evdriver/evdriver/internal/core/actor"
	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/core/persistence"
	"github.com/evdriver/evdriver/internal/core/propertystore"
	"github.com/evdriver/evdriver/internal/core/service"
	"github.com/evdriver/evdriver/internal/server"
	"github.com/evdriver/evdriver/internal/util/actorutil"
	"github.com/evdriver/evdriver/pkg/evmodbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// exit codes, per spec.md §5: 0 clean, 2 bad config, 3 persistence path
// unwritable, 1 any other startup/runtime failure.
const (
	exitRuntimeError  = 1
	exitBadConfig     = 2
	exitPersistDenied = 3
)

func gracefulShutdown(apiServer *http.Server, controlEngine *pactor.PID, root *pactor.RootContext, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Best-effort "ramp to minimum, then stop" before the connection is
	// torn down: queue the two commands, then force one more
	// snapshot/decide/write/publish cycle so they actually reach the
	// charger instead of sitting unapplied in the Command Inbox.
	root.Send(controlEngine, domain.IncomingCommand{Command: domain.SetStartStop{Raw: false}})
	root.Send(controlEngine, domain.IncomingCommand{Command: domain.SetCurrent{Amps: domain.MinSetCurrentA}})
	if _, err := root.RequestFuture(controlEngine, coreactor.ForceTick{}, 4*time.Second).Result(); err != nil {
		log.Printf("shutdown: final tick did not complete in time: %v", err)
	}

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown with error: %v", err)
	}

	log.Println("server exiting")
	done <- true
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(exitBadConfig)
	}
	safePrintConfig(*cfg)

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root

	persist := persistence.NewStore(cfg.Persistence.Path, logger)
	if !persist.Writable() {
		slog.Error("persistence path is not writable", "path", cfg.Persistence.Path)
		os.Exit(exitPersistDenied)
	}

	modbusClient := evmodbus.NewClient(evmodbus.Config{
		Host:             cfg.ModbusTCP.Host,
		Port:             cfg.ModbusTCP.Port,
		SocketSlaveID:    cfg.ModbusTCP.SocketUnitID,
		StationSlaveID:   cfg.ModbusTCP.StationUnitID,
		ConnectTimeout:   cfg.ModbusTCP.ConnectTimeout,
		OperationTimeout: cfg.ModbusTCP.RequestTimeout,
	})
	collector := service.NewCollector(cfg.RegisterMap, cfg.ModbusTCP.SocketUnitID, cfg.ModbusTCP.StationUnitID)

	stream := &eventstream.EventStream{}
	props := propertystore.NewStore(stream)

	masterProps := pactor.PropsFromProducer(func() pactor.Actor {
		return coreactor.NewMasterOfPuppetsActor(*cfg, root, stream, props, persist, modbusClient, collector, logger)
	})
	masterPID, err := root.SpawnNamed(masterProps, domain.ACTOR_ID_MASTER)
	if err != nil {
		slog.Error("failed to start actor tree", "error", err)
		os.Exit(exitRuntimeError)
	}

	// The Control Engine is spawned synchronously inside the Master's
	// *actor.Started handler before it transitions to DefaultReceive, so
	// this request is guaranteed to be answered only once that PID exists.
	result, err := root.RequestFuture(masterPID, coreactor.GetControlEnginePID{}, 5*time.Second).Result()
	if err != nil {
		slog.Error("failed to recover control engine PID", "error", err)
		os.Exit(exitRuntimeError)
	}
	controlEnginePID := result.(coreactor.ControlEnginePIDResult).PID

	httpServer := server.NewServer(*cfg, root, masterPID, controlEnginePID, props)

	done := make(chan bool, 1)
	go gracefulShutdown(httpServer, controlEnginePID, root, done)

	err = httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", "error", err)
	}

	<-done
	log.Println("graceful shutdown complete")

	root.Stop(masterPID)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {
	// alias PORT => EVDRIVER_PORT, matching the teacher's PORT convention
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("EVDRIVER_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("evdriver")
	viper.AutomaticEnv()

	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("using config file", "file", cfgFile)
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				slog.Error("error reading config file", "error", err)
			}
		}
	}

	cfg := config.Default()
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	switch viper.GetString("log_level") {
	case "trace", "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if cfg.MQTT.BaseTopic != "" {
		baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return nil, errors.New("invalid mqtt base topic: can only contain letters, numbers and underscores")
		}
		cfg.MQTT.BaseTopic = baseTopic
	}
	if cfg.MQTT.HADiscoveryTopic != "" {
		hadTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
		if err != nil {
			return nil, errors.New("invalid homeassistant discovery topic: can only contain letters, numbers and underscores")
		}
		cfg.MQTT.HADiscoveryTopic = hadTopic
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("port", 8080)
	viper.SetDefault("modbus_tcp.port", 502)
	viper.SetDefault("modbus_tcp.socket_unit_id", 1)
	viper.SetDefault("modbus_tcp.station_unit_id", 200)
	viper.SetDefault("modbus_tcp.request_timeout", 3*time.Second)
	viper.SetDefault("modbus_tcp.connect_timeout", 5*time.Second)
	viper.SetDefault("register_map.word_order", "ABCD")
	viper.SetDefault("poll.interval_millis", 1000)
	viper.SetDefault("control.min_set_current_a", domain.MinSetCurrentA)
	viper.SetDefault("control.max_set_current_a", domain.MaxSetCurrentA)
	viper.SetDefault("control.configured_ceiling_a", domain.DefaultCeilingA)
	viper.SetDefault("control.dip_grace_sec", domain.DefaultDipGraceSec)
	viper.SetDefault("control.heartbeat_sec", domain.DefaultHeartbeatSec)
	viper.SetDefault("control.phase_hysteresis_sec", domain.DefaultPhaseHysteresisSec)
	viper.SetDefault("control.phase_switch_margin_a", domain.DefaultPhaseSwitchMarginA)
	viper.SetDefault("control.phase_stop_hold_sec", domain.DefaultPhaseStopHoldSec)
	viper.SetDefault("control.default_timezone", "UTC")
	viper.SetDefault("persistence.path", "evdriver_state.json")
	viper.SetDefault("persistence.history_cap", 100)
	viper.SetDefault("mqtt.base_topic", "evdriver")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("using", "config", cfg)
}
