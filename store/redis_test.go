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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/amalgam8/vigil/pkg/fault"
)

// Mock the connection object
type MockedConn struct {
	mock.Mock
}

func (c *MockedConn) Do(commandName string, args ...interface{}) (reply interface{}, err error) {
	margs := c.Called(commandName, args)
	return margs.Get(0), margs.Error(1)
}

func (c *MockedConn) Close() error {
	return nil
}

func (c *MockedConn) Err() error {
	return nil
}

func (c *MockedConn) Flush() error {
	return nil
}

func (c *MockedConn) Receive() (reply interface{}, err error) {
	return nil, nil
}

func (c *MockedConn) Send(commandName string, args ...interface{}) error {
	return nil
}

func TestRedisDBReadKeys(t *testing.T) {
	var expectedKeys []interface{}
	expectedKeys = append(expectedKeys, []byte("key1"))
	expectedKeys = append(expectedKeys, []byte("key2"))
	expectedKeys = append(expectedKeys, []byte("key3"))

	expectedStrings := []string{"key1", "key2", "key3"}

	mockedConn := new(MockedConn)
	db := NewRedisDatabaseWithConn(mockedConn, "addr", "pass")

	var s []interface{}
	s = append(s, []byte{'0'})
	s = append(s, expectedKeys)

	mockedConn.On("Do", "SCAN", []interface{}{int64(0), "MATCH", "*:test"}).Return(s, nil)

	keys, err := db.ReadKeys("*:test")

	assert.NoError(t, err)
	assert.NotNil(t, keys)
	assert.Equal(t, expectedStrings, keys)
}

func TestRedisDBReadEntry(t *testing.T) {
	mockedConn := new(MockedConn)
	db := NewRedisDatabaseWithConn(mockedConn, "addr", "pass")

	mockedConn.On("Do", "GET", []interface{}{"present"}).Return([]byte("value"), nil)
	mockedConn.On("Do", "GET", []interface{}{"absent"}).Return(nil, nil)

	entry, err := db.ReadEntry("present")
	assert.NoError(t, err)
	assert.Equal(t, []byte("value"), entry)

	_, err = db.ReadEntry("absent")
	assert.Equal(t, ErrEntryNotFound, err)
}

func TestRedisDBInsertEntry(t *testing.T) {
	mockedConn := new(MockedConn)
	db := NewRedisDatabaseWithConn(mockedConn, "addr", "pass")

	mockedConn.On("Do", "SET", []interface{}{"plain", []byte("v")}).Return("OK", nil)
	mockedConn.On("Do", "SET", []interface{}{"expiring", []byte("v"), "PX", int64(1500)}).Return("OK", nil)

	assert.NoError(t, db.InsertEntry("plain", []byte("v"), 0))
	assert.NoError(t, db.InsertEntry("expiring", []byte("v"), 1500*time.Millisecond))
	mockedConn.AssertExpectations(t)
}

func TestRedisDBInsertEntryIfAbsent(t *testing.T) {
	mockedConn := new(MockedConn)
	db := NewRedisDatabaseWithConn(mockedConn, "addr", "pass")

	mockedConn.On("Do", "SET", []interface{}{"free", []byte("tok"), "PX", int64(60000), "NX"}).Return("OK", nil)
	mockedConn.On("Do", "SET", []interface{}{"taken", []byte("tok"), "PX", int64(60000), "NX"}).Return(nil, nil)

	acquired, err := db.InsertEntryIfAbsent("free", []byte("tok"), time.Minute)
	assert.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = db.InsertEntryIfAbsent("taken", []byte("tok"), time.Minute)
	assert.NoError(t, err)
	assert.False(t, acquired)
}

func TestRedisDBDeleteEntry(t *testing.T) {
	mockedConn := new(MockedConn)
	db := NewRedisDatabaseWithConn(mockedConn, "addr", "pass")

	mockedConn.On("Do", "DEL", []interface{}{"present"}).Return(int64(1), nil)
	mockedConn.On("Do", "DEL", []interface{}{"absent"}).Return(int64(0), nil)

	deleted, err := db.DeleteEntry("present")
	assert.NoError(t, err)
	assert.Equal(t, 1, deleted)

	deleted, err = db.DeleteEntry("absent")
	assert.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestRedisDBEntryExists(t *testing.T) {
	mockedConn := new(MockedConn)
	db := NewRedisDatabaseWithConn(mockedConn, "addr", "pass")

	mockedConn.On("Do", "EXISTS", []interface{}{"present"}).Return(int64(1), nil)
	mockedConn.On("Do", "EXISTS", []interface{}{"absent"}).Return(int64(0), nil)

	exists, err := db.EntryExists("present")
	assert.NoError(t, err)
	assert.True(t, exists)

	exists, err = db.EntryExists("absent")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisDBPublish(t *testing.T) {
	mockedConn := new(MockedConn)
	db := NewRedisDatabaseWithConn(mockedConn, "addr", "pass")

	mockedConn.On("Do", "PUBLISH", []interface{}{ScalingChannel, []byte("fired")}).Return(int64(1), nil)

	assert.NoError(t, db.Publish(ScalingChannel, []byte("fired")))
	mockedConn.AssertExpectations(t)
}

func TestRedisStoreKVOverMockDB(t *testing.T) {
	s := NewRedisStore(NewMockDB())
	defer s.Close()

	require.NoError(t, s.Set("key", []byte("value"), 0))

	value, err := s.Get("key")
	assert.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	exists, err := s.Exists("key")
	assert.NoError(t, err)
	assert.True(t, exists)

	assert.NoError(t, s.Delete("key"))
	err = s.Delete("key")
	assert.True(t, fault.IsNotFound(err))

	_, err = s.Get("key")
	assert.True(t, fault.IsNotFound(err))
}

func TestRedisStoreLockOverMockDB(t *testing.T) {
	s := NewRedisStore(NewMockDB())
	defer s.Close()

	lock, err := s.AcquireLock("autoscale:svc-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lock)

	_, err = s.AcquireLock("autoscale:svc-1", time.Minute)
	assert.True(t, fault.IsKind(err, fault.LockUnavailable))

	released, err := s.ReleaseLock(&Lock{Key: "autoscale:svc-1", Token: "bogus"})
	assert.NoError(t, err)
	assert.False(t, released)

	released, err = s.ReleaseLock(lock)
	assert.NoError(t, err)
	assert.True(t, released)

	relock, err := s.AcquireLock("autoscale:svc-1", time.Minute)
	assert.NoError(t, err)
	assert.NotEqual(t, lock.Token, relock.Token)
}

func TestRedisStoreLockRenewOverMockDB(t *testing.T) {
	s := NewRedisStore(NewMockDB())
	defer s.Close()

	lock, err := s.AcquireLock("job", time.Minute)
	require.NoError(t, err)

	assert.NoError(t, s.RenewLock(lock, time.Minute))

	err = s.RenewLock(&Lock{Key: "job", Token: "bogus"}, time.Minute)
	assert.True(t, fault.IsKind(err, fault.LockUnavailable))
}

func TestRedisStoreLockKeySeparateFromData(t *testing.T) {
	s := NewRedisStore(NewMockDB())
	defer s.Close()

	_, err := s.AcquireLock("shared-name", time.Minute)
	require.NoError(t, err)

	// A data key of the same name is untouched by the lock lease
	require.NoError(t, s.Set("shared-name", []byte("data"), 0))
	value, err := s.Get("shared-name")
	assert.NoError(t, err)
	assert.Equal(t, []byte("data"), value)
}

func TestRedisStorePubSubOverMockDB(t *testing.T) {
	s := NewRedisStore(NewMockDB())
	defer s.Close()

	var received []Message
	sub, err := s.Subscribe("service.instance.*", func(msg Message) {
		received = append(received, msg)
	})
	require.NoError(t, err)

	require.NoError(t, s.Publish(InstanceStatusChannel, []byte("degraded")))
	require.Len(t, received, 1)
	assert.Equal(t, InstanceStatusChannel, received[0].Channel)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, s.Publish(InstanceStatusChannel, []byte("late")))
	assert.Len(t, received, 1)
}
