package pipeline

import (
	"fmt"

	"github.com/rkotha/go-scrape-tenders/models"
	"github.com/rkotha/go-scrape-tenders/store"
)

// StoreWriter adapts the SQLite store to the OutputWriter interface.
type StoreWriter struct {
	store *store.Store
}

// NewStoreWriter opens the database at path.
func NewStoreWriter(path string) (*StoreWriter, error) {
	s, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return &StoreWriter{store: s}, nil
}

// Write upserts each record keyed by tender identifier.
func (sw *StoreWriter) Write(records []*models.TenderRecord) error {
	for _, rec := range records {
		if err := sw.store.UpsertTender(rec); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database.
func (sw *StoreWriter) Close() error {
	return sw.store.Close()
}

// Validate confirms at least one record landed.
func (sw *StoreWriter) Validate() error {
	n, err := sw.store.Count()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("store is empty")
	}
	return nil
}

// Store exposes the underlying store for detail and run logging.
func (sw *StoreWriter) Store() *store.Store {
	return sw.store
}
