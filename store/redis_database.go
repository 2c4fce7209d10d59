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
	"strings"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/utils/logging"
)

const databaseModule = "DATABASE"

const subscribeRetryDelay = 2 * time.Second

var (
	// deleteIfValueScript deletes the key only while it still holds the given value.
	deleteIfValueScript = redis.NewScript(1,
		`if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`)

	// expireIfValueScript extends the key TTL only while it still holds the given value.
	expireIfValueScript = redis.NewScript(1,
		`if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) else return 0 end`)
)

type redisDB struct {
	conn     redis.Conn
	pool     *redis.Pool
	address  string
	password string
	logger   *log.Entry
}

// NewRedisDatabase returns an instance of a Redis database
func NewRedisDatabase(address string, password string) Database {
	db := &redisDB{
		address:  address,
		password: password,
		logger:   logging.GetLogger(databaseModule),
	}

	db.pool = redis.NewPool(db.dial, 240)
	// TODO: either make configurable, or tweak this number appropriately
	db.pool.MaxActive = 30

	return db
}

// NewRedisDatabaseWithConn returns an instance of a Redis database using an existing connection
func NewRedisDatabaseWithConn(conn redis.Conn, address string, password string) Database {
	return &redisDB{
		conn:     conn,
		address:  address,
		password: password,
		logger:   logging.GetLogger(databaseModule),
	}
}

func (rdb *redisDB) dial() (redis.Conn, error) {
	if strings.Contains(rdb.address, "://") {
		return redis.DialURL(rdb.address, redis.DialPassword(rdb.password))
	}
	if rdb.password != "" {
		return redis.Dial("tcp", rdb.address, redis.DialPassword(rdb.password))
	}
	return redis.Dial("tcp", rdb.address)
}

// getConn returns the injected connection if one exists, otherwise a pooled
// connection together with a release function.
func (rdb *redisDB) getConn() (redis.Conn, func()) {
	if rdb.conn != nil {
		return rdb.conn, func() {}
	}
	conn := rdb.pool.Get()
	return conn, func() { conn.Close() }
}

func (rdb *redisDB) ReadKeys(match string) ([]string, error) {
	conn, release := rdb.getConn()
	defer release()

	var (
		cursor int64
		batch  [][]byte
		keys   []string
	)

	for {
		items, err := redis.Values(conn.Do("SCAN", cursor, "MATCH", match))
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return keys, nil
		}

		items, err = redis.Scan(items, &cursor, &batch)
		if err != nil {
			return nil, err
		}

		for _, key := range batch {
			keys = append(keys, string(key))
		}
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (rdb *redisDB) ReadEntry(key string) ([]byte, error) {
	conn, release := rdb.getConn()
	defer release()

	entry, err := redis.Bytes(conn.Do("GET", key))
	if err == redis.ErrNil {
		return nil, ErrEntryNotFound
	}
	return entry, err
}

func (rdb *redisDB) InsertEntry(key string, entry []byte, ttl time.Duration) error {
	conn, release := rdb.getConn()
	defer release()

	var err error
	if ttl > 0 {
		_, err = conn.Do("SET", key, entry, "PX", int64(ttl/time.Millisecond))
	} else {
		_, err = conn.Do("SET", key, entry)
	}
	return err
}

func (rdb *redisDB) InsertEntryIfAbsent(key string, entry []byte, ttl time.Duration) (bool, error) {
	conn, release := rdb.getConn()
	defer release()

	var reply interface{}
	var err error
	if ttl > 0 {
		reply, err = conn.Do("SET", key, entry, "PX", int64(ttl/time.Millisecond), "NX")
	} else {
		reply, err = conn.Do("SET", key, entry, "NX")
	}
	if err != nil {
		return false, err
	}
	return reply != nil, nil
}

func (rdb *redisDB) DeleteEntry(key string) (int, error) {
	conn, release := rdb.getConn()
	defer release()

	return redis.Int(conn.Do("DEL", key))
}

func (rdb *redisDB) DeleteEntryIfValue(key string, value []byte) (int, error) {
	conn, release := rdb.getConn()
	defer release()

	return redis.Int(deleteIfValueScript.Do(conn, key, value))
}

func (rdb *redisDB) ExpireEntryIfValue(key string, value []byte, ttl time.Duration) (int, error) {
	conn, release := rdb.getConn()
	defer release()

	return redis.Int(expireIfValueScript.Do(conn, key, value, int64(ttl/time.Millisecond)))
}

func (rdb *redisDB) EntryExists(key string) (bool, error) {
	conn, release := rdb.getConn()
	defer release()

	return redis.Bool(conn.Do("EXISTS", key))
}

func (rdb *redisDB) Publish(channel string, message []byte) error {
	conn, release := rdb.getConn()
	defer release()

	_, err := conn.Do("PUBLISH", channel, message)
	return err
}

func (rdb *redisDB) Subscribe(pattern string, handler MessageHandler) (Subscription, error) {
	sub := &redisSubscription{
		db:      rdb,
		pattern: pattern,
		handler: handler,
	}
	if err := sub.connect(); err != nil {
		return nil, err
	}
	go sub.loop()
	return sub, nil
}

func (rdb *redisDB) Close() error {
	if rdb.pool != nil {
		return rdb.pool.Close()
	}
	return nil
}

// redisSubscription wraps a dedicated PSUBSCRIBE connection, reconnecting
// until unsubscribed.
type redisSubscription struct {
	db      *redisDB
	pattern string
	handler MessageHandler
	psc     *redis.PubSubConn
	closed  bool
	mutex   sync.Mutex
}

func (sub *redisSubscription) connect() error {
	var conn redis.Conn
	var err error
	if sub.db.conn != nil {
		conn = sub.db.conn
	} else {
		// Subscriptions hold their connection for their entire lifetime,
		// so dial a dedicated one instead of occupying a pool slot.
		conn, err = sub.db.dial()
		if err != nil {
			return err
		}
	}

	psc := &redis.PubSubConn{Conn: conn}
	if err := psc.PSubscribe(sub.pattern); err != nil {
		psc.Close()
		return err
	}

	sub.mutex.Lock()
	sub.psc = psc
	sub.mutex.Unlock()
	return nil
}

func (sub *redisSubscription) loop() {
	for {
		sub.mutex.Lock()
		psc := sub.psc
		closed := sub.closed
		sub.mutex.Unlock()

		if closed {
			return
		}

		switch v := psc.Receive().(type) {
		case redis.Message:
			sub.deliver(Message{Channel: v.Channel, Payload: v.Data})
		case redis.Subscription:
			// Subscribe and unsubscribe confirmations need no handling.
		case error:
			sub.mutex.Lock()
			closed := sub.closed
			sub.mutex.Unlock()
			if closed {
				return
			}

			sub.db.logger.WithError(v).Warn("Subscription connection failed, reconnecting")
			psc.Close()
			time.Sleep(subscribeRetryDelay)
			for {
				if err := sub.connect(); err == nil {
					break
				}
				sub.mutex.Lock()
				closed := sub.closed
				sub.mutex.Unlock()
				if closed {
					return
				}
				time.Sleep(subscribeRetryDelay)
			}
		}
	}
}

func (sub *redisSubscription) deliver(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			sub.db.logger.WithFields(log.Fields{
				"channel": msg.Channel,
				"error":   r,
			}).Error("Subscription handler panicked")
		}
	}()
	sub.handler(msg)
}

func (sub *redisSubscription) Unsubscribe() error {
	sub.mutex.Lock()
	defer sub.mutex.Unlock()

	if sub.closed {
		return nil
	}
	sub.closed = true

	if sub.psc != nil {
		_ = sub.psc.PUnsubscribe()
		return sub.psc.Close()
	}
	return nil
}
