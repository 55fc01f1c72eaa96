// Package lstore implements lockstore.ILockStore directly on top of an
// embedded key-value database, without any network hop in between.
package lstore

import (
	"fmt"
	"time"

	"github.com/project-sunbird/sunbird-lock-service/lib/db"
	"github.com/project-sunbird/sunbird-lock-service/lib/lockstore"
	"github.com/project-sunbird/sunbird-lock-service/lib/serializer"
)

// requiredFeatures are the database capabilities the store depends on.
// Checked once at construction so operations can assume them.
var requiredFeatures = []db.Feature{
	db.FeatureGet,
	db.FeatureSetIfUnset,
	db.FeatureSetIfExists,
	db.FeatureDelete,
	db.FeatureRange,
}

type storeImpl struct {
	database   db.KVDB
	serializer serializer.ISerializer
}

// NewLockStore creates a lock store backed by the given database. It
// returns RetCUnsupportedOperation if the database lacks a required
// feature.
func NewLockStore(database db.KVDB, s serializer.ISerializer) (lockstore.ILockStore, error) {
	for _, f := range requiredFeatures {
		if !database.SupportsFeature(f) {
			return nil, &lockstore.Error{
				Code: lockstore.RetCUnsupportedOperation,
				Msg:  fmt.Sprintf("database does not support feature %s", f),
			}
		}
	}
	return &storeImpl{database: database, serializer: s}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockstore.ILockStore)
// --------------------------------------------------------------------------

func (s *storeImpl) FindOne(resourceID, resourceType string) (*lockstore.LockRecord, bool, error) {
	value, loaded := s.database.Get(lockstore.Key(resourceID, resourceType))
	if !loaded {
		return nil, false, nil
	}
	record, err := s.decode(value)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

func (s *storeImpl) InsertIfAbsent(record *lockstore.LockRecord, ttl time.Duration) error {
	value, err := s.encode(record)
	if err != nil {
		return err
	}
	if inserted := s.database.SetIfUnset(record.Key(), value, ttl); !inserted {
		return &lockstore.Error{
			Code: lockstore.RetCAlreadyExists,
			Msg:  fmt.Sprintf("a lock already exists for %s", record.Key()),
		}
	}
	return nil
}

func (s *storeImpl) Update(record *lockstore.LockRecord, ttl time.Duration) error {
	value, err := s.encode(record)
	if err != nil {
		return err
	}
	if updated := s.database.SetIfExists(record.Key(), value, ttl); !updated {
		return &lockstore.Error{
			Code: lockstore.RetCNotFound,
			Msg:  fmt.Sprintf("no lock exists for %s", record.Key()),
		}
	}
	return nil
}

func (s *storeImpl) Delete(resourceID, resourceType string) (bool, error) {
	return s.database.Delete(lockstore.Key(resourceID, resourceType)), nil
}

func (s *storeImpl) List(filter lockstore.LockFilter) ([]*lockstore.LockRecord, error) {
	var records []*lockstore.LockRecord
	var rangeErr error
	s.database.Range(func(key string, value []byte) bool {
		record, err := s.decode(value)
		if err != nil {
			rangeErr = err
			return false
		}
		if filter(record) {
			records = append(records, record)
		}
		return true
	})
	if rangeErr != nil {
		return nil, rangeErr
	}
	return records, nil
}

func (s *storeImpl) Close() error {
	return s.database.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *storeImpl) encode(record *lockstore.LockRecord) ([]byte, error) {
	value, err := s.serializer.Serialize(record)
	if err != nil {
		return nil, &lockstore.Error{
			Code: lockstore.RetCInternalError,
			Msg:  fmt.Sprintf("failed to serialize record: %v", err),
		}
	}
	return value, nil
}

func (s *storeImpl) decode(value []byte) (*lockstore.LockRecord, error) {
	var record lockstore.LockRecord
	if err := s.serializer.Deserialize(value, &record); err != nil {
		return nil, &lockstore.Error{
			Code: lockstore.RetCInternalError,
			Msg:  fmt.Sprintf("failed to deserialize record: %v", err),
		}
	}
	return &record, nil
}
