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

// Package store provides the shared key/value space used for cross-node coordination:
// values with TTL expiry, lease-based distributed locks, and publish/subscribe channels.
package store

import (
	"fmt"
	"time"

	"github.com/amalgam8/vigil/utils/health"
)

const (
	module = "STORE"

	keysMetricName       = "store.keys.count"
	expirationMetricName = "store.keys.expiration"
	locksMetricName      = "store.locks.held"
	publishMetricName    = "store.pubsub.published"
)

// Well-known channels published by the coordination components.
const (
	InstanceStatusChannel = "service.instance.status"
	ScalingChannel        = "scaling.activity"
	HealthCheckChannel    = "healthcheck.status"
)

// Store is the interface of the distributed state store.
// A key with a zero TTL never expires. Lock ownership is lease-based: a lock not
// renewed before its TTL elapses is considered voluntarily released.
type Store interface {
	// Get returns the value stored under the given key.
	Get(key string) ([]byte, error)

	// Set stores the value under the given key, overwriting any previous value.
	// A positive TTL bounds the lifetime of the entry.
	Set(key string, value []byte, ttl time.Duration) error

	// Delete removes the given key.
	Delete(key string) error

	// Exists determines whether the given key holds a live value.
	Exists(key string) (bool, error)

	// Keys returns the set of live keys matching the given glob pattern.
	Keys(pattern string) ([]string, error)

	// AcquireLock attempts to take exclusive ownership of the given lock key
	// for the duration of the TTL. The returned lock carries an opaque owner
	// token; only the holder of the token may release or renew the lock.
	AcquireLock(key string, ttl time.Duration) (*Lock, error)

	// ReleaseLock releases the given lock. It returns true if the lock was
	// released, or false if the lock is no longer owned by the presented token.
	ReleaseLock(lock *Lock) (bool, error)

	// RenewLock extends the lease of the given lock by the TTL.
	RenewLock(lock *Lock, ttl time.Duration) error

	// Publish sends a message on the given channel.
	Publish(channel string, message []byte) error

	// Subscribe registers a handler for messages published on channels matching
	// the given glob pattern. Delivery is at-least-once; ordering across channels
	// is not guaranteed.
	Subscribe(pattern string, handler MessageHandler) (Subscription, error)

	// Close releases all resources held by the store.
	Close() error
}

// Lock represents lease-based ownership of a lock key.
type Lock struct {
	Key   string
	Token string
}

// Message is a single publication delivered to a subscriber.
type Message struct {
	Channel string
	Payload []byte
}

// MessageHandler consumes messages delivered to a subscription.
// Handlers are invoked sequentially per subscription and must not block for long periods.
type MessageHandler func(msg Message)

// Subscription represents an active pub/sub registration.
type Subscription interface {
	// Unsubscribe cancels the subscription. Messages already buffered may still
	// be delivered to the handler after Unsubscribe returns.
	Unsubscribe() error
}

// Config holds the configuration of the state store.
type Config struct {
	Type          string
	RedisAddress  string
	RedisPassword string
}

// Backend type values for Config.Type
const (
	InMemory = "inmem"
	Redis    = "redis"
)

// New creates a state store of the configured backend type, and registers a
// liveness check for it with the health registry.
func New(conf *Config) (Store, error) {
	if conf == nil {
		conf = &Config{}
	}

	backend := conf.Type
	if backend == "" {
		backend = InMemory
	}

	var s Store
	switch backend {
	case InMemory:
		s = NewInMemoryStore()
	case Redis:
		if conf.RedisAddress == "" {
			return nil, fmt.Errorf("store: address required for Redis store")
		}
		s = NewRedisStore(NewRedisDatabase(conf.RedisAddress, conf.RedisPassword))
	default:
		return nil, fmt.Errorf("store: unknown store type %q", conf.Type)
	}

	health.Register(module, newHealthChecker(s, backend))
	return s, nil
}
