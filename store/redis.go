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
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/pborman/uuid"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/utils/logging"
)

// lockPrefix keeps lock leases apart from regular entries in the shared keyspace.
const lockPrefix = "vigil.lock:"

type redisStore struct {
	db     Database
	logger *log.Entry
}

// NewRedisStore creates a store implementation backed by the given Redis database.
// Lock leases rely on the database's atomic conditional operations, so mutual
// exclusion holds across every process sharing the same Redis.
func NewRedisStore(db Database) Store {
	return &redisStore{
		db:     db,
		logger: logging.GetLogger(module),
	}
}

func (s *redisStore) Get(key string) ([]byte, error) {
	entry, err := s.db.ReadEntry(key)
	if err == ErrEntryNotFound {
		return nil, fault.Newf(fault.NotFound, "key %q does not exist", key)
	}
	if err != nil {
		return nil, fault.Wrap(fault.Internal, "store read failed", err)
	}
	return entry, nil
}

func (s *redisStore) Set(key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		return fault.Newf(fault.Validation, "negative TTL %v for key %q", ttl, key)
	}
	if err := s.db.InsertEntry(key, value, ttl); err != nil {
		return fault.Wrap(fault.Internal, "store write failed", err)
	}
	return nil
}

func (s *redisStore) Delete(key string) error {
	deleted, err := s.db.DeleteEntry(key)
	if err != nil {
		return fault.Wrap(fault.Internal, "store delete failed", err)
	}
	if deleted == 0 {
		return fault.Newf(fault.NotFound, "key %q does not exist", key)
	}
	return nil
}

func (s *redisStore) Exists(key string) (bool, error) {
	exists, err := s.db.EntryExists(key)
	if err != nil {
		return false, fault.Wrap(fault.Internal, "store read failed", err)
	}
	return exists, nil
}

func (s *redisStore) Keys(pattern string) ([]string, error) {
	keys, err := s.db.ReadKeys(pattern)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, "store scan failed", err)
	}
	return keys, nil
}

func (s *redisStore) AcquireLock(key string, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		return nil, fault.Newf(fault.Validation, "non-positive TTL %v for lock %q", ttl, key)
	}

	token := uuid.New()
	acquired, err := s.db.InsertEntryIfAbsent(lockPrefix+key, []byte(token), ttl)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, "lock acquisition failed", err)
	}
	if !acquired {
		return nil, fault.Newf(fault.LockUnavailable, "lock %q is held by another owner", key)
	}

	return &Lock{Key: key, Token: token}, nil
}

func (s *redisStore) ReleaseLock(lock *Lock) (bool, error) {
	if lock == nil {
		return false, fault.New(fault.Validation, "nil lock")
	}

	released, err := s.db.DeleteEntryIfValue(lockPrefix+lock.Key, []byte(lock.Token))
	if err != nil {
		return false, fault.Wrap(fault.Internal, "lock release failed", err)
	}
	return released == 1, nil
}

func (s *redisStore) RenewLock(lock *Lock, ttl time.Duration) error {
	if lock == nil {
		return fault.New(fault.Validation, "nil lock")
	}
	if ttl <= 0 {
		return fault.Newf(fault.Validation, "non-positive TTL %v for lock %q", ttl, lock.Key)
	}

	renewed, err := s.db.ExpireEntryIfValue(lockPrefix+lock.Key, []byte(lock.Token), ttl)
	if err != nil {
		return fault.Wrap(fault.Internal, "lock renewal failed", err)
	}
	if renewed == 0 {
		return fault.Newf(fault.LockUnavailable, "lock %q is no longer owned", lock.Key)
	}
	return nil
}

func (s *redisStore) Publish(channel string, message []byte) error {
	if err := s.db.Publish(channel, message); err != nil {
		return fault.Wrap(fault.Internal, "publish failed", err)
	}
	return nil
}

func (s *redisStore) Subscribe(pattern string, handler MessageHandler) (Subscription, error) {
	if handler == nil {
		return nil, fault.New(fault.Validation, "nil subscription handler")
	}
	sub, err := s.db.Subscribe(pattern, handler)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, "subscribe failed", err)
	}
	return sub, nil
}

func (s *redisStore) Close() error {
	return s.db.Close()
}
