package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pushmill/push-gateway/internal/campaign"
	"github.com/pushmill/push-gateway/internal/config"
	"github.com/pushmill/push-gateway/internal/deadletter"
	"github.com/pushmill/push-gateway/internal/dispatch"
	"github.com/pushmill/push-gateway/internal/gate"
	"github.com/pushmill/push-gateway/internal/processor"
	"github.com/pushmill/push-gateway/internal/queue"
	"github.com/pushmill/push-gateway/internal/repository"
	"github.com/pushmill/push-gateway/internal/services"
	"github.com/pushmill/push-gateway/internal/transport"
	"github.com/pushmill/push-gateway/pkg/logger"
	"github.com/pushmill/push-gateway/pkg/pg"
	"github.com/pushmill/push-gateway/pkg/prom"
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

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// push transport
	creds, err := transport.NewCredentialStore(transport.VAPIDKeys{
		PublicKey:  config.Get().VAPIDPublicKey,
		PrivateKey: config.Get().VAPIDPrivateKey,
		Subscriber: config.Get().VAPIDSubject,
	})
	if err != nil {
		logger.Error("failed to load vapid identity", "error", err)
		return
	}
	pushClient := transport.NewClient(creds, transport.Config{
		TTL:     config.Get().PushTTL,
		Urgency: config.Get().PushDefaultUrgency,
		Timeout: config.Get().PushTimeout,
	})

	subscriptionRepo := repository.NewSubscriptionRepository(db)
	deviceProfileRepo := repository.NewDeviceProfileRepository(db)
	preferenceRepo := repository.NewPreferenceRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	deliveryRepo := repository.NewDeliveryRepository(db)
	failedDeliveryRepo := repository.NewFailedDeliveryRepository(db)

	deadLetters := deadletter.NewStore(failedDeliveryRepo)
	dispatcher := dispatch.New(subscriptionRepo, deviceProfileRepo, pushClient, deadLetters, nil)

	preferenceService := services.NewPreferenceService(preferenceRepo, subscriptionRepo, services.Caps{
		PerHour: config.Get().GatePerHourCap,
		PerDay:  config.Get().GatePerDayCap,
		PerWeek: config.Get().GatePerWeekCap,
	})
	sendGate := gate.New(preferenceService, deliveryRepo)

	events := queue.NewTrackingPublisher(redisAdap,
		config.Get().EventStreamName, config.Get().EventStreamMaxLen)

	orchestrator := campaign.New(campaignRepo, subscriptionRepo, deliveryRepo, sendGate, dispatcher, events, campaign.Config{
		Concurrency: config.Get().CampaignConcurrency,
		PageSize:    config.Get().CampaignPageSize,
	})

	idempotencyConfig := processor.DefaultIdempotencyConfig()
	idempotencyService := processor.NewIdempotencyService(redisAdap, idempotencyConfig)

	service, err := processor.NewProcessorService(redisAdap)
	if err != nil {
		logger.Error("failed to create the dispatcher service", "error", err)
		return
	}
	service.RegisterProcessor(processor.NewCampaignJobProcessor(orchestrator, idempotencyService))

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(":9100", "/metrics")
	}()

	// Background loops stop through this context; queue consumers drain
	// through service.Stop.
	loopCtx, cancelLoops := context.WithCancel(context.Background())
	defer cancelLoops()

	// scheduler: turns due schedules into queued jobs
	publishQueue, err := queue.NewQueue(redisAdap, queue.QueueConfig{
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
	campaignService := services.NewCampaignService(campaignRepo, publishQueue)
	scheduler := services.NewSchedulerService(campaignRepo, campaignService, services.SchedulerConfig{
		PollInterval: config.Get().SchedulerPollInterval,
		BatchSize:    config.Get().SchedulerBatchSize,
	})
	go scheduler.Run(loopCtx)

	// recovery: drains the dead-letter queue
	if config.Get().RecoveryEnabled {
		recovery := deadletter.NewRecoveryService(deadLetters, deliveryRepo, dispatcher, redisAdap, deadletter.RecoveryConfig{
			Interval:  config.Get().RecoverySweepInterval,
			BatchSize: config.Get().RecoveryBatchSize,
			Retention: config.Get().RecoveryRetention,
		})
		go recovery.Run(loopCtx)
	}

	go func() {
		err := service.Start()
		if err != nil {
			logger.Error("failed to start dispatcher", "error", err)
		}
	}()
	logger.Info("dispatcher is up", "version", version)

	<-c
	cancelLoops()
	service.Stop()
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
