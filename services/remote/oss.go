package remotesvc

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/pkg/errors"
)

// OSSStore reads exports from an Aliyun OSS bucket.
type OSSStore struct {
	bucket *oss.Bucket
}

var _ ObjectStore = (*OSSStore)(nil)

func NewOSSStore(endpoint, accessKeyID, accessKeySecret, bucketName string) (*OSSStore, error) {
	client, err := oss.New(endpoint, accessKeyID, accessKeySecret)
	if err != nil {
		return nil, errors.Wrap(err, "creating oss client")
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, errors.Wrap(err, "opening oss bucket")
	}
	return &OSSStore{bucket: bucket}, nil
}

func (s *OSSStore) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := s.bucket.GetObject(key, oss.WithContext(ctx))
	if err != nil {
		if se, ok := err.(oss.ServiceError); ok && se.StatusCode == http.StatusNotFound {
			return nil, ErrObjectNotFound
		}
		return nil, errors.Wrapf(err, "getting %s", key)
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	return data, errors.Wrapf(err, "reading %s", key)
}

func (s *OSSStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	marker := oss.Marker("")
	for {
		res, err := s.bucket.ListObjects(oss.Prefix(prefix), oss.Delimiter("/"), marker, oss.MaxKeys(1000), oss.WithContext(ctx))
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s", prefix)
		}
		for _, p := range res.CommonPrefixes {
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(p, prefix), "/"))
		}
		if !res.IsTruncated {
			return names, nil
		}
		marker = oss.Marker(res.NextMarker)
	}
}
