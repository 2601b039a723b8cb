package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zeez-dotcom/laundryao-analytics/internal/alerting"
	"github.com/zeez-dotcom/laundryao-analytics/internal/analytics"
	"github.com/zeez-dotcom/laundryao-analytics/internal/analytics/broker"
	"github.com/zeez-dotcom/laundryao-analytics/internal/conf"
	"github.com/zeez-dotcom/laundryao-analytics/internal/datastore/repository"
	"github.com/zeez-dotcom/laundryao-analytics/internal/forecast"
	"github.com/zeez-dotcom/laundryao-analytics/internal/logger"
	"github.com/zeez-dotcom/laundryao-analytics/internal/notify"
	"github.com/zeez-dotcom/laundryao-analytics/internal/telemetry"
	"github.com/zeez-dotcom/laundryao-analytics/internal/warehouse"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the config file")
	metricsAddr := flag.String("metrics-addr", ":9090", "listen address for the metrics endpoint")
	flag.Parse()

	cfg, err := conf.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.New(cfg.Environment)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("starting analytics service",
		zap.String("environment", cfg.Environment))

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	var db *gorm.DB
	switch cfg.Warehouse.Driver {
	case "mysql":
		db, err = warehouse.OpenMySQL(cfg.Warehouse.DSN)
	default:
		db, err = warehouse.OpenSQLite(cfg.Warehouse.Path)
	}
	if err != nil {
		log.Fatal("failed to open warehouse", zap.Error(err))
	}
	if err := warehouse.Migrate(db); err != nil {
		log.Fatal("failed to migrate warehouse schema", zap.Error(err))
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatal("failed to migrate alerting schema", zap.Error(err))
	}

	var driver analytics.BrokerDriver
	if cfg.Broker.Enabled {
		mqttDriver := broker.NewMQTTDriver(broker.MQTTConfig{
			BrokerURL: cfg.Broker.URL,
			ClientID:  cfg.Broker.ClientID,
			Username:  cfg.Broker.Username,
			Password:  cfg.Broker.Password,
			QoS:       byte(cfg.Broker.QoS),
		}, log)
		connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = mqttDriver.Connect(connectCtx)
		cancel()
		if err != nil {
			log.Fatal("failed to connect to broker", zap.Error(err))
		}
		driver = mqttDriver
	}

	bus := analytics.NewBus(analytics.BusConfig{
		Driver:      driver,
		OwnsDriver:  true,
		MaxAttempts: cfg.Bus.MaxAttempts,
		BaseDelay:   cfg.Bus.BaseDelay.Std(),
		TopicPrefix: cfg.Bus.TopicPrefix,
	}, log, metrics)

	writer := warehouse.NewWriter(db, log)
	sink := analytics.NewSink(bus, writer, analytics.SinkConfig{
		MaxBatchSize:  cfg.Sink.MaxBatchSize,
		FlushInterval: cfg.Sink.FlushInterval.Std(),
	}, log, metrics)
	sink.Start()

	repo := repository.NewAlertingRepository(db)
	notifier := notify.NewService(notify.Config{
		EmailEnabled:  cfg.Notify.EmailEnabled,
		EmailFrom:     cfg.Notify.EmailFrom,
		ResendAPIKey:  cfg.Notify.ResendAPIKey,
		SMSEnabled:    cfg.Notify.SMSEnabled,
		SMSGatewayURL: cfg.Notify.SMSGatewayURL,
	}, log)
	slack := notify.NewSlackClient(log)
	push := notify.NewPushSender(log)
	provider := forecast.NewWarehouseProvider(db)

	engine, err := alerting.NewEngine(repo, provider, notifier, slack, push, alerting.EngineConfig{
		EqualTolerance:        cfg.Alerting.EqualTolerance,
		DeliveryRetentionDays: cfg.Alerting.DeliveryRetentionDays,
	}, log, metrics)
	if err != nil {
		log.Fatal("failed to create alerting engine", zap.Error(err))
	}

	scheduler := alerting.NewScheduler(engine, cfg.Alerting.CheckInterval.Std(), log)
	scheduler.Start()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		log.Info("metrics server starting", zap.String("address", *metricsAddr))
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sink.Stop(ctx); err != nil {
		log.Error("sink shutdown error", zap.Error(err))
	}
	if err := bus.Shutdown(); err != nil {
		log.Error("bus shutdown error", zap.Error(err))
	}
}
