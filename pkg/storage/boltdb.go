package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketDynamicResources = []byte("dynamic_resources")
	bucketAdmission        = []byte("admission")
)

// Key under which the single admission document lives.
var admissionKey = []byte("current")

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "burrow.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketDynamicResources,
			bucketAdmission,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveDynamicResources replaces the stored dynamic resource table.
func (s *BoltStore) SaveDynamicResources(entries []types.DynamicResourceEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketDynamicResources); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketDynamicResources)
		if err != nil {
			return err
		}
		for _, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(e.NodeID.String()), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadDynamicResources returns the stored dynamic resource table.
func (s *BoltStore) LoadDynamicResources() ([]types.DynamicResourceEntry, error) {
	var entries []types.DynamicResourceEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDynamicResources)
		return b.ForEach(func(k, v []byte) error {
			var e types.DynamicResourceEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}

// SaveAdmission stores the current admission configuration.
func (s *BoltStore) SaveAdmission(cfg config.AdmissionConfig) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAdmission)
		data, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		return b.Put(admissionKey, data)
	})
}

// LoadAdmission returns the stored admission configuration, or nil when
// none has been saved yet.
func (s *BoltStore) LoadAdmission() (*config.AdmissionConfig, error) {
	var cfg *config.AdmissionConfig
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAdmission)
		data := b.Get(admissionKey)
		if data == nil {
			return nil
		}
		cfg = &config.AdmissionConfig{}
		return json.Unmarshal(data, cfg)
	})
	return cfg, err
}
