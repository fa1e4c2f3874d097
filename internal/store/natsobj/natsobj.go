// Package natsobj is the object store driver on a NATS JetStream object
// store bucket.
package natsobj

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/hanpama/graphcms/internal/errs"
	"github.com/hanpama/graphcms/internal/store"
)

const (
	storeName       = "nats"
	contentTypeMeta = "content-type"
)

// Store is one object store bucket.
type Store struct {
	conn   *nats.Conn
	bucket jetstream.ObjectStore
}

// Open connects to url and binds the bucket, provisioning it on first use.
func Open(ctx context.Context, url, bucket string) (*Store, error) {
	nc, err := nats.Connect(url, nats.Name("graphcms"))
	if err != nil {
		return nil, errs.Storage(storeName, "connect", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, errs.Storage(storeName, "jetstream", err)
	}
	obj, err := bind(ctx, js, bucket)
	if err != nil {
		nc.Close()
		return nil, errs.Storage(storeName, "bucket", err)
	}
	return &Store{conn: nc, bucket: obj}, nil
}

func bind(ctx context.Context, js jetstream.JetStream, bucket string) (jetstream.ObjectStore, error) {
	obj, err := js.ObjectStore(ctx, bucket)
	if err == nil {
		return obj, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) && !errors.Is(err, jetstream.ErrStreamNotFound) {
		return nil, err
	}
	obj, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "uploaded files",
	})
	if errors.Is(err, jetstream.ErrBucketExists) {
		// created concurrently by another instance
		return js.ObjectStore(ctx, bucket)
	}
	return obj, err
}

func (s *Store) Put(ctx context.Context, info store.ObjectInfo, r io.Reader) error {
	meta := jetstream.ObjectMeta{Name: info.Name}
	if info.ContentType != "" {
		meta.Metadata = map[string]string{contentTypeMeta: info.ContentType}
	}
	_, err := s.bucket.Put(ctx, meta, r)
	return errs.Storage(storeName, "put", err)
}

func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, store.ObjectInfo, error) {
	res, err := s.bucket.Get(ctx, name)
	if err != nil {
		return nil, store.ObjectInfo{}, errs.Storage(storeName, "get", notFound(name, err))
	}
	info, err := res.Info()
	if err != nil {
		res.Close()
		return nil, store.ObjectInfo{}, errs.Storage(storeName, "get", err)
	}
	return res, store.ObjectInfo{
		Name:        info.Name,
		Size:        int64(info.Size),
		ContentType: info.Metadata[contentTypeMeta],
		Modified:    info.ModTime,
	}, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	return errs.Storage(storeName, "delete", notFound(name, s.bucket.Delete(ctx, name)))
}

func (s *Store) Close() error {
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return err
	}
	return nil
}

func notFound(name string, err error) error {
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("%w: %s", errs.ErrNotFound, name)
	}
	return err
}
