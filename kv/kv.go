// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package kv persists the small pieces of state that must survive a
// restart: BLE bond material, Wi-Fi credentials and the last error
// string. Nothing owned by the SWD core is stored here.
package kv

import (
	"time"

	"github.com/juju/errors"
	bolt "go.etcd.io/bbolt"
)

const (
	BucketBonds = "bonds"
	BucketWifi  = "wifi"
	BucketState = "state"

	keyLastError = "last_error"
	keyWifiSSID  = "ssid"
	keyWifiPass  = "pass"
)

var buckets = []string{BucketBonds, BucketWifi, BucketState}

// Store is a bbolt database with one bucket per state family.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the database file and makes sure all buckets
// exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Annotatef(err, "open kv store %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return errors.Annotatef(err, "create bucket %s", b)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns nil without error when the key is absent.
func (s *Store) Get(bucket, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return errors.Errorf("no bucket %s", bucket)
		}
		if v := b.Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func (s *Store) Put(bucket, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return errors.Errorf("no bucket %s", bucket)
		}
		return b.Put([]byte(key), value)
	})
}

func (s *Store) Erase(bucket, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return errors.Errorf("no bucket %s", bucket)
		}
		return b.Delete([]byte(key))
	})
}

// DeleteBond drops the stored pairing keys for one peer address.
func (s *Store) DeleteBond(addr string) error {
	return s.Erase(BucketBonds, addr)
}

func (s *Store) SetLastError(msg string) error {
	return s.Put(BucketState, keyLastError, []byte(msg))
}

func (s *Store) LastError() (string, error) {
	v, err := s.Get(BucketState, keyLastError)
	return string(v), err
}

func (s *Store) SetWifiCredentials(ssid, pass string) error {
	if err := s.Put(BucketWifi, keyWifiSSID, []byte(ssid)); err != nil {
		return err
	}
	return s.Put(BucketWifi, keyWifiPass, []byte(pass))
}

func (s *Store) WifiCredentials() (ssid, pass string, err error) {
	sv, err := s.Get(BucketWifi, keyWifiSSID)
	if err != nil {
		return "", "", err
	}
	pv, err := s.Get(BucketWifi, keyWifiPass)
	if err != nil {
		return "", "", err
	}
	return string(sv), string(pv), nil
}
