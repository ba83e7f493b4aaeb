package remotesvc

import (
	"context"
	"io"
	"strings"

	"github.com/kurin/blazer/b2"
	"github.com/pkg/errors"
)

// B2Store reads exports from a Backblaze B2 bucket.
type B2Store struct {
	bucket *b2.Bucket
}

var _ ObjectStore = (*B2Store)(nil)

func NewB2Store(ctx context.Context, accountID, appKey, bucketName string) (*B2Store, error) {
	client, err := b2.NewClient(ctx, accountID, appKey)
	if err != nil {
		return nil, errors.Wrap(err, "creating b2 client")
	}
	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, errors.Wrap(err, "opening b2 bucket")
	}
	return &B2Store{bucket: bucket}, nil
}

func (s *B2Store) Get(ctx context.Context, key string) ([]byte, error) {
	r := s.bucket.Object(key).NewReader(ctx)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		if b2.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, errors.Wrapf(err, "reading %s", key)
	}
	return data, nil
}

func (s *B2Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	iter := s.bucket.List(ctx, b2.ListPrefix(prefix), b2.ListDelimiter("/"))
	for iter.Next() {
		name := iter.Object().Name()
		if strings.HasSuffix(name, "/") {
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(name, prefix), "/"))
		}
	}
	return names, errors.Wrapf(iter.Err(), "listing %s", prefix)
}
