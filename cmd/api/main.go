package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pushmill/push-gateway/internal/config"
	"github.com/pushmill/push-gateway/internal/deadletter"
	"github.com/pushmill/push-gateway/internal/handlers"
	"github.com/pushmill/push-gateway/internal/queue"
	"github.com/pushmill/push-gateway/internal/repository"
	"github.com/pushmill/push-gateway/internal/services"
	xhttp "github.com/pushmill/push-gateway/pkg/http"
	"github.com/pushmill/push-gateway/pkg/logger"
	"github.com/pushmill/push-gateway/pkg/pg"
	"github.com/pushmill/push-gateway/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 5))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	// The API only publishes campaign jobs; consuming happens in the
	// dispatcher binary against the same stream.
	q, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName,
		MaxRetries:        config.Get().QueueMaxRetries,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
		EnableDLQ:         config.Get().QueueEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
	}

	subscriptionRepo := repository.NewSubscriptionRepository(db)
	deviceProfileRepo := repository.NewDeviceProfileRepository(db)
	preferenceRepo := repository.NewPreferenceRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	deliveryRepo := repository.NewDeliveryRepository(db)
	failedDeliveryRepo := repository.NewFailedDeliveryRepository(db)

	// services
	subscriptionService := services.NewSubscriptionService(subscriptionRepo, deviceProfileRepo)
	preferenceService := services.NewPreferenceService(preferenceRepo, subscriptionRepo, services.Caps{
		PerHour: config.Get().GatePerHourCap,
		PerDay:  config.Get().GatePerDayCap,
		PerWeek: config.Get().GatePerWeekCap,
	})
	campaignService := services.NewCampaignService(campaignRepo, q)
	trackingService := services.NewTrackingService(deliveryRepo)
	healthService := services.NewHealthService(db, redisAdap)
	deadLetters := deadletter.NewStore(failedDeliveryRepo)

	// v1 handlers
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService)
	preferenceHandler := handlers.NewPreferenceHandler(preferenceService)
	campaignHandler := handlers.NewCampaignHandler(campaignService)
	trackingHandler := handlers.NewTrackingHandler(trackingService)
	deadLetterHandler := handlers.NewDeadLetterHandler(deadLetters)
	healthHandler := handlers.NewHealthHandler(healthService)

	g := s.Router.Group("/api/v1")
	handlers.RegisterSubscriptionRoutes(g, subscriptionHandler)
	handlers.RegisterPreferenceRoutes(g, preferenceHandler)
	handlers.RegisterCampaignRoutes(g, campaignHandler)
	handlers.RegisterTrackingRoutes(g, trackingHandler)
	handlers.RegisterDeadLetterRoutes(g, deadLetterHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()
	logger.Info("api is up", "addr", config.Get().HttpListenAddr, "version", version)

	<-c
	s.Shutdown()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
