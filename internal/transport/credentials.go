package transport

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/pushmill/push-gateway/pkg/logger"
)

// VAPIDKeys is one VAPID identity: the key pair plus the contact address
// push services may use to reach the operator.
type VAPIDKeys struct {
	PublicKey  string
	PrivateKey string
	Subscriber string
}

func (k VAPIDKeys) validate() error {
	if k.PublicKey == "" || k.PrivateKey == "" {
		return errors.New("vapid key pair is incomplete")
	}
	if k.Subscriber == "" {
		return errors.New("vapid subscriber contact is required")
	}
	return nil
}

// CredentialStore hands out the active VAPID identity and supports rotation
// at runtime. Senders copy the keys under a read lock, so rotation never
// stalls in-flight deliveries and never hands a sender a half-written pair;
// sends already encrypting simply finish with the identity they started with.
type CredentialStore struct {
	mu         sync.RWMutex
	active     VAPIDKeys
	generation uint64
}

func NewCredentialStore(keys VAPIDKeys) (*CredentialStore, error) {
	if err := keys.validate(); err != nil {
		return nil, err
	}
	return &CredentialStore{active: keys, generation: 1}, nil
}

// Active returns the current identity by value.
func (s *CredentialStore) Active() VAPIDKeys {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Generation increments on every rotation, for logs and metrics.
func (s *CredentialStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Rotate atomically swaps in a new identity. Browsers bind subscriptions to
// the VAPID public key they were created with, so rotating invalidates
// existing subscriptions; callers own that migration.
func (s *CredentialStore) Rotate(keys VAPIDKeys) error {
	if err := keys.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.active = keys
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	logger.Info("vapid credentials rotated", "generation", gen)
	return nil
}
