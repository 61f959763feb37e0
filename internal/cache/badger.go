package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/chenyahui/gin-cache/persist"
	badger "github.com/dgraph-io/badger/v4"
)

func deref(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		return v.Elem().Interface()
	}

	return value
}

// BadgerStore is a persist.CacheStore kept in an embedded badger database
type BadgerStore struct {
	DB *badger.DB
}

// NewBadgerStore opens the database at dir, an empty dir keeps everything in memory
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger cache, %w", err)
	}

	return &BadgerStore{DB: db}, nil
}

func (b *BadgerStore) Get(key string, value any) error {
	return b.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return persist.ErrCacheMiss
			}

			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, value)
		})
	})
}

func (b *BadgerStore) Set(key string, value any, expire time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value, %w", err)
	}

	return b.DB.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data)
		if expire > 0 {
			e = e.WithTTL(expire)
		}

		return txn.SetEntry(e)
	})
}

func (b *BadgerStore) Delete(key string) error {
	return b.DB.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *BadgerStore) Close() error {
	return b.DB.Close()
}
