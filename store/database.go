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
	"errors"
	"time"
)

// ErrEntryNotFound is returned by Database implementations when the requested entry does not exist.
var ErrEntryNotFound = errors.New("entry not found")

// Database abstracts the operations of the external database backing the store.
// Conditional operations (if-absent, if-value) must be atomic on the database side.
type Database interface {
	ReadKeys(match string) ([]string, error)
	ReadEntry(key string) ([]byte, error)
	InsertEntry(key string, entry []byte, ttl time.Duration) error
	InsertEntryIfAbsent(key string, entry []byte, ttl time.Duration) (bool, error)
	DeleteEntry(key string) (int, error)
	DeleteEntryIfValue(key string, value []byte) (int, error)
	ExpireEntryIfValue(key string, value []byte, ttl time.Duration) (int, error)
	EntryExists(key string) (bool, error)
	Publish(channel string, message []byte) error
	Subscribe(pattern string, handler MessageHandler) (Subscription, error)
	Close() error
}
