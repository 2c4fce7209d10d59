// Copyright 2016 IBM Corporation
//
//   Licensed under the Apache License, Version 2.0 (the "License");
//   you may not use this file except in compliance with the License.
//   You may obtain a copy of the License at
//
//       http://www.apache.org/licenses/LICENSE-2.0
//
//   Unless required by applicable law or agreed to in writing, software
//   distributed under the License is distributed on an "AS IS" BASIS,
//   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//   See the License for the specific language governing permissions and
//   limitations under the License.

package store

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/pborman/uuid"
	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/utils/logging"
)

const subscriberBufferSize = 64

type storeEntry struct {
	value      []byte
	expiration time.Time
	timer      *time.Timer
}

func (e *storeEntry) expired(now time.Time) bool {
	return !e.expiration.IsZero() && !now.Before(e.expiration)
}

type lockEntry struct {
	token      string
	expiration time.Time
	timer      *time.Timer
}

func (le *lockEntry) expired(now time.Time) bool {
	return !now.Before(le.expiration)
}

type subscriber struct {
	pattern string
	handler MessageHandler
	msgs    chan Message
	store   *inMemoryStore
}

type inMemoryStore struct {
	entries     map[string]*storeEntry
	locks       map[string]*lockEntry
	subscribers map[*subscriber]struct{}
	closed      bool
	logger      *log.Entry

	keysMetric       metrics.Counter
	expirationMetric metrics.Meter
	locksMetric      metrics.Counter
	publishMetric    metrics.Meter

	sync.RWMutex
}

// NewInMemoryStore creates a new in-memory store implementation.
// It provides the full Store semantics within a single process, and serves
// as the fallback backend when no external store is configured.
func NewInMemoryStore() Store {
	counterFactory := func() metrics.Counter { return metrics.NewCounter() }
	meterFactory := func() metrics.Meter { return metrics.NewMeter() }

	return &inMemoryStore{
		entries:     make(map[string]*storeEntry),
		locks:       make(map[string]*lockEntry),
		subscribers: make(map[*subscriber]struct{}),
		logger:      logging.GetLogger(module),

		keysMetric:       metrics.GetOrRegister(keysMetricName, counterFactory).(metrics.Counter),
		expirationMetric: metrics.GetOrRegister(expirationMetricName, meterFactory).(metrics.Meter),
		locksMetric:      metrics.GetOrRegister(locksMetricName, counterFactory).(metrics.Counter),
		publishMetric:    metrics.GetOrRegister(publishMetricName, meterFactory).(metrics.Meter),
	}
}

func (s *inMemoryStore) Get(key string) ([]byte, error) {
	s.RLock()
	defer s.RUnlock()

	entry, exists := s.entries[key]
	if !exists || entry.expired(time.Now()) {
		return nil, fault.Newf(fault.NotFound, "key %q does not exist", key)
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

func (s *inMemoryStore) Set(key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		return fault.Newf(fault.Validation, "negative TTL %v for key %q", ttl, key)
	}

	s.Lock()
	defer s.Unlock()

	if old, exists := s.entries[key]; exists {
		if old.timer != nil {
			old.timer.Stop()
		}
	} else {
		s.keysMetric.Inc(1)
	}

	entry := &storeEntry{
		value: make([]byte, len(value)),
	}
	copy(entry.value, value)

	if ttl > 0 {
		entry.expiration = time.Now().Add(ttl)
		entry.timer = time.AfterFunc(ttl, func() {
			s.checkIfExpired(key)
		})
	}

	s.entries[key] = entry
	return nil
}

// checkIfExpired re-validates expiration under the write lock, since the entry
// may have been overwritten between the timer firing and the lock acquisition.
func (s *inMemoryStore) checkIfExpired(key string) {
	s.Lock()
	defer s.Unlock()

	entry, exists := s.entries[key]
	if !exists || !entry.expired(time.Now()) {
		return
	}

	delete(s.entries, key)
	s.keysMetric.Dec(1)
	s.expirationMetric.Mark(1)
	s.logger.WithField("key", key).Debug("Expired key removed")
}

func (s *inMemoryStore) Delete(key string) error {
	s.Lock()
	defer s.Unlock()

	entry, exists := s.entries[key]
	if !exists || entry.expired(time.Now()) {
		return fault.Newf(fault.NotFound, "key %q does not exist", key)
	}

	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(s.entries, key)
	s.keysMetric.Dec(1)
	return nil
}

func (s *inMemoryStore) Exists(key string) (bool, error) {
	s.RLock()
	defer s.RUnlock()

	entry, exists := s.entries[key]
	return exists && !entry.expired(time.Now()), nil
}

func (s *inMemoryStore) Keys(pattern string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fault.Wrap(fault.Validation, "malformed key pattern", err)
	}

	s.RLock()
	defer s.RUnlock()

	now := time.Now()
	keys := make([]string, 0, len(s.entries))
	for key, entry := range s.entries {
		if entry.expired(now) {
			continue
		}
		if matched, _ := filepath.Match(pattern, key); matched {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *inMemoryStore) AcquireLock(key string, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		return nil, fault.Newf(fault.Validation, "non-positive TTL %v for lock %q", ttl, key)
	}

	s.Lock()
	defer s.Unlock()

	now := time.Now()
	if existing, held := s.locks[key]; held {
		if !existing.expired(now) {
			return nil, fault.Newf(fault.LockUnavailable, "lock %q is held by another owner", key)
		}
		if existing.timer != nil {
			existing.timer.Stop()
		}
	} else {
		s.locksMetric.Inc(1)
	}

	token := uuid.New()
	s.locks[key] = &lockEntry{
		token:      token,
		expiration: now.Add(ttl),
		timer: time.AfterFunc(ttl, func() {
			s.checkIfLockExpired(key, token)
		}),
	}

	return &Lock{Key: key, Token: token}, nil
}

// checkIfLockExpired removes the lock lease if it is still owned by the given
// token and its expiration has passed. A renewed or re-acquired lease is left alone.
func (s *inMemoryStore) checkIfLockExpired(key, token string) {
	s.Lock()
	defer s.Unlock()

	entry, held := s.locks[key]
	if !held || entry.token != token || !entry.expired(time.Now()) {
		return
	}

	delete(s.locks, key)
	s.locksMetric.Dec(1)
	s.logger.WithField("key", key).Debug("Lock lease expired")
}

func (s *inMemoryStore) ReleaseLock(lock *Lock) (bool, error) {
	if lock == nil {
		return false, fault.New(fault.Validation, "nil lock")
	}

	s.Lock()
	defer s.Unlock()

	entry, held := s.locks[lock.Key]
	if !held || entry.token != lock.Token || entry.expired(time.Now()) {
		return false, nil
	}

	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(s.locks, lock.Key)
	s.locksMetric.Dec(1)
	return true, nil
}

func (s *inMemoryStore) RenewLock(lock *Lock, ttl time.Duration) error {
	if lock == nil {
		return fault.New(fault.Validation, "nil lock")
	}
	if ttl <= 0 {
		return fault.Newf(fault.Validation, "non-positive TTL %v for lock %q", ttl, lock.Key)
	}

	s.Lock()
	defer s.Unlock()

	now := time.Now()
	entry, held := s.locks[lock.Key]
	if !held || entry.token != lock.Token || entry.expired(now) {
		return fault.Newf(fault.LockUnavailable, "lock %q is no longer owned", lock.Key)
	}

	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.expiration = now.Add(ttl)
	entry.timer = time.AfterFunc(ttl, func() {
		s.checkIfLockExpired(lock.Key, lock.Token)
	})
	return nil
}

func (s *inMemoryStore) Publish(channel string, message []byte) error {
	payload := make([]byte, len(message))
	copy(payload, message)
	msg := Message{Channel: channel, Payload: payload}

	s.RLock()
	defer s.RUnlock()

	if s.closed {
		return fault.New(fault.Internal, "store is closed")
	}

	s.publishMetric.Mark(1)
	for sub := range s.subscribers {
		if matched, _ := filepath.Match(sub.pattern, channel); !matched {
			continue
		}
		select {
		case sub.msgs <- msg:
		default:
			// A subscriber that cannot keep up is dropped a message rather than
			// stalling publishers.
			s.logger.WithFields(log.Fields{
				"channel": channel,
				"pattern": sub.pattern,
			}).Warn("Subscriber buffer full, dropping message")
		}
	}
	return nil
}

func (s *inMemoryStore) Subscribe(pattern string, handler MessageHandler) (Subscription, error) {
	if handler == nil {
		return nil, fault.New(fault.Validation, "nil subscription handler")
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fault.Wrap(fault.Validation, "malformed channel pattern", err)
	}

	s.Lock()
	defer s.Unlock()

	if s.closed {
		return nil, fault.New(fault.Internal, "store is closed")
	}

	sub := &subscriber{
		pattern: pattern,
		handler: handler,
		msgs:    make(chan Message, subscriberBufferSize),
		store:   s,
	}
	s.subscribers[sub] = struct{}{}
	go sub.run()

	return sub, nil
}

func (sub *subscriber) run() {
	for msg := range sub.msgs {
		sub.deliver(msg)
	}
}

func (sub *subscriber) deliver(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			sub.store.logger.WithFields(log.Fields{
				"channel": msg.Channel,
				"error":   r,
			}).Error("Subscription handler panicked")
		}
	}()
	sub.handler(msg)
}

func (sub *subscriber) Unsubscribe() error {
	sub.store.Lock()
	defer sub.store.Unlock()

	if _, exists := sub.store.subscribers[sub]; exists {
		delete(sub.store.subscribers, sub)
		close(sub.msgs)
	}
	return nil
}

func (s *inMemoryStore) Close() error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for _, entry := range s.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	for _, entry := range s.locks {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	for sub := range s.subscribers {
		delete(s.subscribers, sub)
		close(sub.msgs)
	}

	s.entries = make(map[string]*storeEntry)
	s.locks = make(map[string]*lockEntry)
	return nil
}
