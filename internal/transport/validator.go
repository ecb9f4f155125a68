package transport

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/pushmill/push-gateway/internal/model"
)

// validateChunkSize bounds how many subscriptions are checked concurrently
// in one wave. Waves run back to back; a cancelled context stops between
// waves, never mid-wave.
const validateChunkSize = 10

const maxEndpointLength = 2048

// ValidationIssue names one subscription that failed health validation.
type ValidationIssue struct {
	SubscriptionID int64  `json:"subscription_id"`
	Endpoint       string `json:"endpoint"`
	Reason         string `json:"reason"`
}

// ValidateSubscription checks that a subscription is structurally able to
// receive a push: a routable endpoint URL and key material that will
// actually encrypt. It makes no network calls.
func ValidateSubscription(sub *model.Subscription) error {
	if sub == nil {
		return errors.New("subscription is nil")
	}
	if sub.Endpoint == "" {
		return errors.New("endpoint is empty")
	}
	if len(sub.Endpoint) > maxEndpointLength {
		return errors.Errorf("endpoint exceeds %d characters", maxEndpointLength)
	}
	u, err := url.Parse(sub.Endpoint)
	if err != nil {
		return errors.Wrap(err, "endpoint is not a valid url")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return errors.Errorf("endpoint scheme %q is not http(s)", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("endpoint has no host")
	}

	p256dh, err := decodeKey(sub.P256dhKey)
	if err != nil {
		return errors.Wrap(err, "p256dh key is not valid base64")
	}
	// An uncompressed P-256 point: 0x04 prefix plus two 32-byte coordinates.
	if len(p256dh) != 65 || p256dh[0] != 0x04 {
		return errors.New("p256dh key is not an uncompressed P-256 point")
	}

	auth, err := decodeKey(sub.AuthKey)
	if err != nil {
		return errors.Wrap(err, "auth secret is not valid base64")
	}
	if len(auth) != 16 {
		return errors.Errorf("auth secret is %d bytes, want 16", len(auth))
	}

	return nil
}

// decodeKey accepts both base64 alphabets, padded or not, the same way the
// push encryption layer does.
func decodeKey(key string) ([]byte, error) {
	key = strings.TrimRight(key, "=")
	if b, err := base64.RawURLEncoding.DecodeString(key); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(key)
}

// ValidateBatch health-checks subscriptions in concurrent waves of
// validateChunkSize and reports only the failures, in input order.
func ValidateBatch(ctx context.Context, subs []*model.Subscription) ([]ValidationIssue, error) {
	errs := make([]error, len(subs))

	for start := 0; start < len(subs); start += validateChunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + validateChunkSize
		if end > len(subs) {
			end = len(subs)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = ValidateSubscription(subs[i])
			}(i)
		}
		wg.Wait()
	}

	var issues []ValidationIssue
	for i, err := range errs {
		if err != nil {
			issues = append(issues, ValidationIssue{
				SubscriptionID: subs[i].ID,
				Endpoint:       subs[i].Endpoint,
				Reason:         err.Error(),
			})
		}
	}
	return issues, nil
}
