// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package db

import (
	"path"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// GoLevelDB leveldb wrapper
type GoLevelDB struct {
	db *leveldb.DB
}

// NewGoLevelDB open dir/name.db
func NewGoLevelDB(name string, dir string, cache int) (*GoLevelDB, error) {
	dbPath := path.Join(dir, name+".db")
	if cache <= 0 {
		cache = 64
	}
	handles := cache
	// Open the db and recover any potential corruptions
	db, err := leveldb.OpenFile(dbPath, &opt.Options{
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cache / 2 * opt.MiB,
		WriteBuffer:            cache / 4 * opt.MiB, // Two of these are used internally
		Filter:                 filter.NewBloomFilter(10),
	})
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		dlog.Warn("NewGoLevelDB", "recover corrupted db", dbPath)
		db, err = leveldb.RecoverFile(dbPath, nil)
	}
	if err != nil {
		return nil, err
	}
	return &GoLevelDB{db: db}, nil
}

// NewGoMemDB leveldb over memory storage
func NewGoMemDB() (*GoLevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &GoLevelDB{db: db}, nil
}

// Get value or ErrNotFoundInDb
func (db *GoLevelDB) Get(key []byte) ([]byte, error) {
	res, err := db.db.Get(key, nil)
	if err != nil {
		if err == errors.ErrNotFound {
			return nil, ErrNotFoundInDb
		}
		dlog.Error("Get", "error", err)
		return nil, err
	}
	return res, nil
}

// Set put
func (db *GoLevelDB) Set(key []byte, value []byte) error {
	err := db.db.Put(key, value, nil)
	if err != nil {
		dlog.Error("Set", "error", err)
	}
	return err
}

// SetSync put and fsync
func (db *GoLevelDB) SetSync(key []byte, value []byte) error {
	err := db.db.Put(key, value, &opt.WriteOptions{Sync: true})
	if err != nil {
		dlog.Error("SetSync", "error", err)
	}
	return err
}

// Delete del
func (db *GoLevelDB) Delete(key []byte) error {
	err := db.db.Delete(key, nil)
	if err != nil {
		dlog.Error("Delete", "error", err)
	}
	return err
}

// Close close
func (db *GoLevelDB) Close() error {
	return db.db.Close()
}

// List prefix scan
func (db *GoLevelDB) List(prefix []byte) ([][]byte, error) {
	iter := db.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	var values [][]byte
	for iter.Next() {
		values = append(values, cloneByte(iter.Value()))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return values, nil
}

// ListLast reverse prefix scan
func (db *GoLevelDB) ListLast(prefix []byte, count int) ([][]byte, error) {
	iter := db.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	var values [][]byte
	for ok := iter.Last(); ok && len(values) < count; ok = iter.Prev() {
		values = append(values, cloneByte(iter.Value()))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return values, nil
}

// PrefixCount 前缀下 key 的数目
func (db *GoLevelDB) PrefixCount(prefix []byte) int64 {
	iter := db.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	var n int64
	for iter.Next() {
		n++
	}
	return n
}

func cloneByte(v []byte) []byte {
	value := make([]byte, len(v))
	copy(value, v)
	return value
}
