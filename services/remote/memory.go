package remotesvc

import (
	"context"
	"sort"
	"sync"

	"github.com/trezcool/edurise/core/mirror"
)

// MemoryFetcher is an in-process remote store, with failure injection & blocking gates for tests.
type MemoryFetcher struct {
	mutex    sync.RWMutex
	schools  map[string]mirror.Document
	docs     map[string]map[string][]mirror.Document // school -> collection -> docs
	failures map[string]error                        // collection -> error
	gates    map[string]chan struct{}                // collection -> closed when released
	calls    map[string]int
}

var _ mirror.Fetcher = (*MemoryFetcher)(nil)

func NewMemoryFetcher() *MemoryFetcher {
	return &MemoryFetcher{
		schools:  make(map[string]mirror.Document),
		docs:     make(map[string]map[string][]mirror.Document),
		failures: make(map[string]error),
		gates:    make(map[string]chan struct{}),
		calls:    make(map[string]int),
	}
}

// PutSchool sets the school root document.
func (f *MemoryFetcher) PutSchool(schoolID string, fields map[string]mirror.Value) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.schools[schoolID] = mirror.Document{ID: schoolID, Fields: fields}
}

// Put replaces the documents of a school collection.
func (f *MemoryFetcher) Put(schoolID, collection string, docs ...mirror.Document) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.docs[schoolID] == nil {
		f.docs[schoolID] = make(map[string][]mirror.Document)
	}
	f.docs[schoolID][collection] = append([]mirror.Document(nil), docs...)
}

// Fail makes every fetch of collection fail with err (nil clears it).
func (f *MemoryFetcher) Fail(collection string, err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if err == nil {
		delete(f.failures, collection)
		return
	}
	f.failures[collection] = err
}

// Block holds fetches of collection until the returned release func is called.
func (f *MemoryFetcher) Block(collection string) (release func()) {
	gate := make(chan struct{})
	f.mutex.Lock()
	f.gates[collection] = gate
	f.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mutex.Lock()
			delete(f.gates, collection)
			f.mutex.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many times collection was fetched.
func (f *MemoryFetcher) Calls(collection string) int {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.calls[collection]
}

func (f *MemoryFetcher) enter(ctx context.Context, collection string) error {
	f.mutex.Lock()
	f.calls[collection]++
	gate := f.gates[collection]
	err := f.failures[collection]
	f.mutex.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *MemoryFetcher) FetchSchool(ctx context.Context, schoolID string) (mirror.Document, error) {
	if err := f.enter(ctx, "school"); err != nil {
		return mirror.Document{}, mirror.NewRemoteUnavailable("school", err)
	}
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	doc, ok := f.schools[schoolID]
	if !ok {
		return mirror.Document{}, mirror.ErrSchoolNotFound
	}
	return doc, nil
}

func (f *MemoryFetcher) FetchCollection(ctx context.Context, schoolID, collection string) ([]mirror.Document, error) {
	if err := f.enter(ctx, collection); err != nil {
		return nil, mirror.NewRemoteUnavailable(collection, err)
	}
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return append([]mirror.Document{}, f.docs[schoolID][collection]...), nil
}

func (f *MemoryFetcher) ListSchools(context.Context) ([]string, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	ids := make([]string, 0, len(f.schools))
	for id := range f.schools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
