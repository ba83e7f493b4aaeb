package remotesvc

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/edurise/core"
	"github.com/trezcool/edurise/core/mirror"
)

// SchoolLister is implemented by fetchers that can enumerate the remote schools.
type SchoolLister interface {
	ListSchools(ctx context.Context) ([]string, error)
}

// New builds the fetcher selected by conf.Remote.Kind.
func New(ctx context.Context, conf *core.Config) (mirror.Fetcher, error) {
	rc := conf.Remote
	switch rc.Kind {
	case "firestore":
		return NewFirestoreFetcher(ctx, rc.ProjectID, rc.CredentialsFile, rc.Root)
	case "oss":
		store, err := NewOSSStore(rc.Endpoint, rc.AccessKeyID, rc.AccessKeySecret, rc.Bucket)
		if err != nil {
			return nil, err
		}
		return NewSnapshotFetcher(store, rc.Prefix), nil
	case "b2":
		store, err := NewB2Store(ctx, rc.B2Account, rc.B2Key, rc.Bucket)
		if err != nil {
			return nil, err
		}
		return NewSnapshotFetcher(store, rc.Prefix), nil
	case "dir":
		return NewSnapshotFetcher(DirStore{Root: rc.Bucket}, rc.Prefix), nil
	case "memory":
		return NewMemoryFetcher(), nil
	}
	return nil, errors.Errorf("unknown remote kind %q", rc.Kind)
}
