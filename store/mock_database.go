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
	"bytes"
	"path/filepath"
	"sync"
	"time"
)

type mockEntry struct {
	value      []byte
	expiration time.Time
}

func (e *mockEntry) expired(now time.Time) bool {
	return !e.expiration.IsZero() && !now.Before(e.expiration)
}

type mockSubscription struct {
	db      *mockDB
	pattern string
	handler MessageHandler
}

func (sub *mockSubscription) Unsubscribe() error {
	sub.db.mutex.Lock()
	defer sub.db.mutex.Unlock()

	delete(sub.db.subscribers, sub)
	return nil
}

type mockDB struct {
	record      map[string]*mockEntry
	subscribers map[*mockSubscription]struct{}
	mutex       sync.Mutex
}

// NewMockDB returns an instance of a mock database. Entries honor TTLs by
// expiring lazily, and publications are dispatched synchronously, which keeps
// tests deterministic.
func NewMockDB() Database {
	return &mockDB{
		record:      make(map[string]*mockEntry),
		subscribers: make(map[*mockSubscription]struct{}),
	}
}

func (mdb *mockDB) ReadKeys(match string) ([]string, error) {
	mdb.mutex.Lock()
	defer mdb.mutex.Unlock()

	now := time.Now()
	var keyList []string
	for key, entry := range mdb.record {
		if entry.expired(now) {
			continue
		}
		matched, _ := filepath.Match(match, key)
		if matched {
			keyList = append(keyList, key)
		}
	}

	return keyList, nil
}

func (mdb *mockDB) ReadEntry(key string) ([]byte, error) {
	mdb.mutex.Lock()
	defer mdb.mutex.Unlock()

	entry, exists := mdb.record[key]
	if !exists || entry.expired(time.Now()) {
		return nil, ErrEntryNotFound
	}
	return entry.value, nil
}

func (mdb *mockDB) InsertEntry(key string, value []byte, ttl time.Duration) error {
	mdb.mutex.Lock()
	defer mdb.mutex.Unlock()

	mdb.record[key] = newMockEntry(value, ttl)
	return nil
}

func (mdb *mockDB) InsertEntryIfAbsent(key string, value []byte, ttl time.Duration) (bool, error) {
	mdb.mutex.Lock()
	defer mdb.mutex.Unlock()

	if entry, exists := mdb.record[key]; exists && !entry.expired(time.Now()) {
		return false, nil
	}
	mdb.record[key] = newMockEntry(value, ttl)
	return true, nil
}

func (mdb *mockDB) DeleteEntry(key string) (int, error) {
	mdb.mutex.Lock()
	defer mdb.mutex.Unlock()

	if entry, exists := mdb.record[key]; exists && !entry.expired(time.Now()) {
		delete(mdb.record, key)
		return 1, nil
	}

	return 0, nil
}

func (mdb *mockDB) DeleteEntryIfValue(key string, value []byte) (int, error) {
	mdb.mutex.Lock()
	defer mdb.mutex.Unlock()

	entry, exists := mdb.record[key]
	if !exists || entry.expired(time.Now()) || !bytes.Equal(entry.value, value) {
		return 0, nil
	}
	delete(mdb.record, key)
	return 1, nil
}

func (mdb *mockDB) ExpireEntryIfValue(key string, value []byte, ttl time.Duration) (int, error) {
	mdb.mutex.Lock()
	defer mdb.mutex.Unlock()

	entry, exists := mdb.record[key]
	if !exists || entry.expired(time.Now()) || !bytes.Equal(entry.value, value) {
		return 0, nil
	}
	entry.expiration = time.Now().Add(ttl)
	return 1, nil
}

func (mdb *mockDB) EntryExists(key string) (bool, error) {
	mdb.mutex.Lock()
	defer mdb.mutex.Unlock()

	entry, exists := mdb.record[key]
	return exists && !entry.expired(time.Now()), nil
}

func (mdb *mockDB) Publish(channel string, message []byte) error {
	mdb.mutex.Lock()
	subs := make([]*mockSubscription, 0, len(mdb.subscribers))
	for sub := range mdb.subscribers {
		if matched, _ := filepath.Match(sub.pattern, channel); matched {
			subs = append(subs, sub)
		}
	}
	mdb.mutex.Unlock()

	for _, sub := range subs {
		sub.handler(Message{Channel: channel, Payload: message})
	}
	return nil
}

func (mdb *mockDB) Subscribe(pattern string, handler MessageHandler) (Subscription, error) {
	mdb.mutex.Lock()
	defer mdb.mutex.Unlock()

	sub := &mockSubscription{
		db:      mdb,
		pattern: pattern,
		handler: handler,
	}
	mdb.subscribers[sub] = struct{}{}
	return sub, nil
}

func (mdb *mockDB) Close() error {
	return nil
}

func newMockEntry(value []byte, ttl time.Duration) *mockEntry {
	entry := &mockEntry{
		value: make([]byte, len(value)),
	}
	copy(entry.value, value)
	if ttl > 0 {
		entry.expiration = time.Now().Add(ttl)
	}
	return entry
}
