package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	config "github.com/hanpama/graphcms/internal/config"
	store "github.com/hanpama/graphcms/internal/store"
	"github.com/hanpama/graphcms/internal/store/boltdb"
	"github.com/hanpama/graphcms/internal/store/memory"
	"github.com/hanpama/graphcms/internal/store/natsobj"
	"github.com/hanpama/graphcms/internal/store/sqlsearch"
)

// Stores are the three storage capabilities the modules run on.
type Stores struct {
	DB      store.Database
	Index   store.Index
	Objects store.ObjectStore
}

// MemoryStores returns in-process stores that vanish with the process.
func MemoryStores() *Stores {
	return &Stores{
		DB:      memory.NewDatabase(),
		Index:   memory.NewIndex(),
		Objects: memory.NewObjectStore(),
	}
}

// OpenStores opens the drivers named by cfg.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	s := &Stores{}
	switch cfg.Storage.Driver {
	case "memory":
		s.DB, s.Index = memory.NewDatabase(), memory.NewIndex()
	default:
		db, err := boltdb.Open(filepath.Join(cfg.Storage.Path, "cms.db"), cfg.Storage.Prefix)
		if err != nil {
			return nil, fmt.Errorf("open document store: %w", err)
		}
		s.DB = db
		idx, err := sqlsearch.Open(cfg.Storage.SearchPath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open search index: %w", err)
		}
		s.Index = idx
	}

	switch cfg.Objects.Driver {
	case "memory":
		s.Objects = memory.NewObjectStore()
	default:
		obj, err := natsobj.Open(ctx, cfg.Objects.NATSURL, cfg.Objects.Bucket)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open object store: %w", err)
		}
		s.Objects = obj
	}
	return s, nil
}

// Close closes every open store.
func (s *Stores) Close() error {
	var errList []error
	if s.Objects != nil {
		errList = append(errList, s.Objects.Close())
	}
	if s.Index != nil {
		errList = append(errList, s.Index.Close())
	}
	if s.DB != nil {
		errList = append(errList, s.DB.Close())
	}
	return errors.Join(errList...)
}
