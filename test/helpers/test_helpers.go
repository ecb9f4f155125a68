package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/internal/repository"
	"github.com/pushmill/push-gateway/pkg/pg"
	"github.com/pushmill/push-gateway/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func SetupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.SubscriptionEntity{},
		&repository.SubscriptionSegmentEntity{},
		&repository.DeviceProfileEntity{},
		&repository.PreferenceEntity{},
		&repository.CampaignEntity{},
		&repository.DeliveryEntity{},
		&repository.FailedDeliveryEntity{},
	)
	require.NoError(t, err)

	// A second pooled connection to :memory: opens a separate empty database,
	// so everything runs through one connection.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	pgDB := &pg.DB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	return pgDB
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Adapters are cached globally by connection name, so each test needs its
	// own name or it would reach a previous test's closed miniredis.
	connName := fmt.Sprintf("test-%d", time.Now().UnixNano())
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateTestSubscription(t *testing.T, db *pg.DB, status model.SubscriptionStatus) *repository.SubscriptionEntity {
	ctx := context.Background()
	sub := &repository.SubscriptionEntity{
		Endpoint:  RandomEndpoint(),
		P256dhKey: "test-p256dh-key",
		AuthKey:   "test-auth-key",
		Status:    string(status),
	}
	err := db.Write(ctx).Create(sub).Error
	require.NoError(t, err)
	return sub
}

func CreateTestSegment(t *testing.T, db *pg.DB, subscriptionID int64, segment string) {
	ctx := context.Background()
	err := db.Write(ctx).Create(&repository.SubscriptionSegmentEntity{
		SubscriptionID: subscriptionID,
		Segment:        segment,
	}).Error
	require.NoError(t, err)
}

func CreateTestCampaign(t *testing.T, db *pg.DB, status model.CampaignStatus, payload model.PushPayload) *repository.CampaignEntity {
	ctx := context.Background()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	c := &repository.CampaignEntity{
		Name:    "test campaign",
		Payload: string(raw),
		Status:  string(status),
	}
	err = db.Write(ctx).Create(c).Error
	require.NoError(t, err)
	return c
}

func CreateTestDelivery(t *testing.T, db *pg.DB, campaignID *int64, subscriptionID int64, status model.DeliveryStatus) *repository.DeliveryEntity {
	ctx := context.Background()
	d := &repository.DeliveryEntity{
		CampaignID:     campaignID,
		SubscriptionID: subscriptionID,
		Status:         string(status),
	}
	if status != model.DeliveryStatusPending && status != model.DeliveryStatusFailed {
		now := time.Now()
		d.SentAt = &now
	}
	err := db.Write(ctx).Create(d).Error
	require.NoError(t, err)
	return d
}

func CreateTestPreference(t *testing.T, db *pg.DB, subscriptionID int64, optIn bool) *repository.PreferenceEntity {
	ctx := context.Background()
	p := &repository.PreferenceEntity{
		SubscriptionID: subscriptionID,
		OptIn:          optIn,
		MaxPerHour:     model.DefaultMaxPerHour,
		MaxPerDay:      model.DefaultMaxPerDay,
		MaxPerWeek:     model.DefaultMaxPerWeek,
	}
	err := db.Write(ctx).Create(p).Error
	require.NoError(t, err)
	return p
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

var endpointSeq atomic.Int64

// RandomEndpoint returns a unique push-service URL; endpoints carry a unique
// constraint, so a timestamp alone is not enough inside one test.
func RandomEndpoint() string {
	return fmt.Sprintf("https://push.test/send/%s-%d",
		time.Now().Format("20060102150405"), endpointSeq.Add(1))
}

func Ptr[T any](v T) *T {
	return &v
}
