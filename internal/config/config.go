package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/pushmill/push-gateway/pkg/logger"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Config holds every tunable the gateway reads. Only this struct is allowed
// to touch env/ini/file sources; the rest of the codebase goes through Get().
type Config struct {
	AppEnv              string `env:"APP_ENV" default:"dev"`
	AppName             string `env:"APP_NAME" default:"push_gateway"`
	AppDebug            bool   `env:"APP_DEBUG" default:"1"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI"`
	AppBaseUrl          string `env:"APP_BASE_URL"`

	HttpListenAddr            string `env:"HTTP_LISTEN_ADDR" validation:"mustExists"`
	HttpBaseRequestUrl        string `env:"HTTP_BASE_REQUEST_URI" validation:"mustExists"`
	HttpServerReadTimeout     int    `env:"HTTP_SERVER_READ_TIMEOUT"`
	HttpServerWriteTimeout    int    `env:"HTTP_SERVER_WRITE_TIMEOUT"`
	HttpServerReadBufferSize  int    `env:"HTTP_SERVER_READ_BUFFER_SIZE"`
	HttpServerWriteBufferSize int    `env:"HTTP_SERVER_WRITE_BUFFER_SIZE"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE"`

	ProfilerEnable bool `env:"PROFILER_ENABLE"`
	ProfilerPort   int  `env:"PROFILER_PORT"`

	LogLevel []string `env:"LOG_LEVEL"`

	// VAPID identifies this server to the push services. The subject is the
	// contact URI browsers may surface to end users (mailto: or https:).
	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `env:"VAPID_SUBJECT"`

	PushTTL            int           `env:"PUSH_TTL" default:"86400"`
	PushDefaultUrgency string        `env:"PUSH_DEFAULT_URGENCY" default:"normal"`
	PushTimeout        time.Duration `env:"PUSH_TIMEOUT" default:"10s"`

	// Frequency caps stamped onto newly created preference rows.
	GatePerHourCap int `env:"GATE_PER_HOUR_CAP" default:"3"`
	GatePerDayCap  int `env:"GATE_PER_DAY_CAP" default:"10"`
	GatePerWeekCap int `env:"GATE_PER_WEEK_CAP" default:"50"`

	QueueName              string        `env:"QUEUE_NAME" default:"jobs:campaigns"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP" default:"dispatchers"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME" default:"dispatcher"`
	QueueConsumerCount     int           `env:"QUEUE_CONSUMER_COUNT" default:"4"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES" default:"3"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT" default:"15m"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL" default:"1s"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE" default:"10"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN" default:"100000"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ" default:"1"`

	CampaignConcurrency int `env:"CAMPAIGN_CONCURRENCY" default:"8"`
	CampaignPageSize    int `env:"CAMPAIGN_PAGE_SIZE" default:"500"`

	SchedulerPollInterval time.Duration `env:"SCHEDULER_POLL_INTERVAL" default:"15s"`
	SchedulerBatchSize    int           `env:"SCHEDULER_BATCH_SIZE" default:"20"`

	RecoveryEnabled       bool          `env:"RECOVERY_ENABLED" default:"1"`
	RecoverySweepInterval time.Duration `env:"RECOVERY_SWEEP_INTERVAL" default:"30s"`
	RecoveryBatchSize     int           `env:"RECOVERY_BATCH_SIZE" default:"100"`
	RecoveryRetention     time.Duration `env:"RECOVERY_RETENTION" default:"720h"`

	EventStreamName   string `env:"EVENT_STREAM_NAME" default:"events:deliveries"`
	EventStreamMaxLen int64  `env:"EVENT_STREAM_MAX_LEN" default:"100000"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)

	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}
