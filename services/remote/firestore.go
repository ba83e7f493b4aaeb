package remotesvc

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/trezcool/edurise/core/mirror"
)

// FirestoreFetcher reads the {root}/{schoolID}/{collection} hierarchy.
type FirestoreFetcher struct {
	client *firestore.Client
	root   string
}

var _ mirror.Fetcher = (*FirestoreFetcher)(nil)

func NewFirestoreFetcher(ctx context.Context, projectID, credentialsFile, root string) (*FirestoreFetcher, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating firestore client")
	}
	return &FirestoreFetcher{client: client, root: root}, nil
}

func (f *FirestoreFetcher) Close() error {
	return f.client.Close()
}

func (f *FirestoreFetcher) FetchSchool(ctx context.Context, schoolID string) (mirror.Document, error) {
	snap, err := f.client.Collection(f.root).Doc(schoolID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return mirror.Document{}, mirror.ErrSchoolNotFound
		}
		return mirror.Document{}, mirror.NewRemoteUnavailable(f.root, err)
	}
	fields, err := firestoreFields(snap.Data())
	if err != nil {
		return mirror.Document{}, mirror.NewRemoteUnavailable(f.root, err)
	}
	return mirror.Document{ID: snap.Ref.ID, Fields: fields}, nil
}

func (f *FirestoreFetcher) FetchCollection(ctx context.Context, schoolID, collection string) ([]mirror.Document, error) {
	iter := f.client.Collection(f.root).Doc(schoolID).Collection(collection).Documents(ctx)
	defer iter.Stop()

	docs := make([]mirror.Document, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mirror.NewRemoteUnavailable(collection, err)
		}
		fields, err := firestoreFields(snap.Data())
		if err != nil {
			// unconvertible document: keyless so the mirror skips it
			docs = append(docs, mirror.Document{})
			continue
		}
		docs = append(docs, mirror.Document{ID: snap.Ref.ID, Fields: fields})
	}
	return docs, nil
}

// ListSchools returns the ids of the root collection documents.
func (f *FirestoreFetcher) ListSchools(ctx context.Context) ([]string, error) {
	iter := f.client.Collection(f.root).DocumentRefs(ctx)
	var ids []string
	for {
		ref, err := iter.Next()
		if err == iterator.Done {
			return ids, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "listing schools")
		}
		ids = append(ids, ref.ID)
	}
}

func firestoreFields(data map[string]interface{}) (map[string]mirror.Value, error) {
	fields := make(map[string]mirror.Value, len(data))
	for k, native := range data {
		val, err := firestoreValue(native)
		if err != nil {
			return nil, errors.Wrapf(err, "converting field %q", k)
		}
		fields[k] = val
	}
	return fields, nil
}

// firestoreValue handles the Firestore-only types then defers to mirror.ValueOf.
func firestoreValue(native interface{}) (mirror.Value, error) {
	switch x := native.(type) {
	case *latlng.LatLng:
		if x == nil {
			return mirror.Null(), nil
		}
		return mirror.Map(map[string]mirror.Value{
			"latitude":  mirror.Float(x.GetLatitude()),
			"longitude": mirror.Float(x.GetLongitude()),
		}), nil
	case *firestore.DocumentRef:
		if x == nil {
			return mirror.Null(), nil
		}
		return mirror.String(x.Path), nil
	case time.Time:
		return mirror.Timestamp(x), nil
	case []interface{}:
		items := make([]mirror.Value, 0, len(x))
		for i, item := range x {
			val, err := firestoreValue(item)
			if err != nil {
				return mirror.Value{}, errors.Wrapf(err, "converting item %d", i)
			}
			items = append(items, val)
		}
		return mirror.List(items...), nil
	case map[string]interface{}:
		fields, err := firestoreFields(x)
		if err != nil {
			return mirror.Value{}, err
		}
		return mirror.Map(fields), nil
	}
	return mirror.ValueOf(native)
}
