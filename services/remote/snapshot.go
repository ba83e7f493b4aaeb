package remotesvc

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"github.com/trezcool/edurise/core/mirror"
)

// ErrObjectNotFound is returned by an ObjectStore for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore reads whole objects from a bucket.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns the names of the "directories" directly under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

var snapshotJSON = sonic.Config{UseNumber: true}.Froze()

// SnapshotFetcher reads school exports laid out as
// {prefix}/{schoolID}/school.json ({field: value}) and
// {prefix}/{schoolID}/{collection}.json ({docID: {field: value}}).
type SnapshotFetcher struct {
	store  ObjectStore
	prefix string
}

var _ mirror.Fetcher = (*SnapshotFetcher)(nil)

func NewSnapshotFetcher(store ObjectStore, prefix string) *SnapshotFetcher {
	return &SnapshotFetcher{store: store, prefix: strings.Trim(prefix, "/")}
}

func (f *SnapshotFetcher) key(schoolID, name string) string {
	return path.Join(f.prefix, schoolID, name+".json")
}

func (f *SnapshotFetcher) FetchSchool(ctx context.Context, schoolID string) (mirror.Document, error) {
	const collection = "school"
	data, err := f.store.Get(ctx, f.key(schoolID, collection))
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return mirror.Document{}, mirror.ErrSchoolNotFound
		}
		return mirror.Document{}, mirror.NewRemoteUnavailable(collection, err)
	}

	var raw map[string]interface{}
	if err = snapshotJSON.Unmarshal(data, &raw); err != nil {
		return mirror.Document{}, mirror.NewRemoteUnavailable(collection, errors.Wrap(err, "decoding school"))
	}
	fields, err := mirror.FieldsOf(raw)
	if err != nil {
		return mirror.Document{}, mirror.NewRemoteUnavailable(collection, err)
	}
	return mirror.Document{ID: schoolID, Fields: fields}, nil
}

// FetchCollection returns the documents of the collection export. A missing export is an empty collection.
func (f *SnapshotFetcher) FetchCollection(ctx context.Context, schoolID, collection string) ([]mirror.Document, error) {
	data, err := f.store.Get(ctx, f.key(schoolID, collection))
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return []mirror.Document{}, nil
		}
		return nil, mirror.NewRemoteUnavailable(collection, err)
	}
	docs, err := decodeCollection(data)
	if err != nil {
		return nil, mirror.NewRemoteUnavailable(collection, err)
	}
	return docs, nil
}

func decodeCollection(data []byte) ([]mirror.Document, error) {
	var raw map[string]interface{}
	if err := snapshotJSON.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decoding collection")
	}

	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]mirror.Document, 0, len(raw))
	for _, id := range ids {
		obj, ok := raw[id].(map[string]interface{})
		if !ok {
			// not a document: keyless so the mirror skips it
			docs = append(docs, mirror.Document{})
			continue
		}
		fields, err := mirror.FieldsOf(obj)
		if err != nil {
			docs = append(docs, mirror.Document{})
			continue
		}
		docs = append(docs, mirror.Document{ID: id, Fields: fields})
	}
	return docs, nil
}

// ListSchools returns the school ids that have an export.
func (f *SnapshotFetcher) ListSchools(ctx context.Context) ([]string, error) {
	prefix := f.prefix
	if prefix != "" {
		prefix += "/"
	}
	ids, err := f.store.List(ctx, prefix)
	if err != nil {
		return nil, errors.Wrap(err, "listing schools")
	}
	sort.Strings(ids)
	return ids, nil
}
