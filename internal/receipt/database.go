package receipt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

const (
	preferencesBucket = "preferences"
	uploadsBucket     = "uploads"

	autoSubmitKey = "auto_submit"
)

// DB defines the interface for database operations
type DB interface {
	// AutoSubmit returns the persisted capture mode, true when never set
	AutoSubmit() (bool, error)

	// SetAutoSubmit persists the capture mode
	SetAutoSubmit(enabled bool) error

	// SaveUpload records an uploaded receipt file
	SaveUpload(upload *Upload) error

	// ListUploads returns all upload records
	ListUploads() ([]*Upload, error)

	// DeleteUpload removes an upload record
	DeleteUpload(itemID string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{preferencesBucket, uploadsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// AutoSubmit reads the capture mode preference
func (b *BoltDB) AutoSubmit() (bool, error) {
	enabled := true
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(preferencesBucket)).Get([]byte(autoSubmitKey))
		if data == nil {
			return nil
		}
		v, err := strconv.ParseBool(string(data))
		if err != nil {
			return fmt.Errorf("parsing %s: %w", autoSubmitKey, err)
		}
		enabled = v
		return nil
	})
	if err != nil {
		return true, err
	}
	return enabled, nil
}

// SetAutoSubmit writes the capture mode preference
func (b *BoltDB) SetAutoSubmit(enabled bool) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(preferencesBucket)).Put([]byte(autoSubmitKey), []byte(strconv.FormatBool(enabled)))
	})
}

// SaveUpload saves an upload record keyed by item id
func (b *BoltDB) SaveUpload(upload *Upload) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(upload)
		if err != nil {
			return fmt.Errorf("marshaling upload: %w", err)
		}
		return tx.Bucket([]byte(uploadsBucket)).Put([]byte(upload.ItemID), data)
	})
}

// ListUploads returns all upload records
func (b *BoltDB) ListUploads() ([]*Upload, error) {
	uploads := make([]*Upload, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(uploadsBucket)).ForEach(func(k, v []byte) error {
			var upload Upload
			if err := json.Unmarshal(v, &upload); err != nil {
				return fmt.Errorf("unmarshaling upload %s: %w", k, err)
			}
			uploads = append(uploads, &upload)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return uploads, nil
}

// DeleteUpload removes an upload record. Missing records are not an error.
func (b *BoltDB) DeleteUpload(itemID string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(uploadsBucket)).Delete([]byte(itemID))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
