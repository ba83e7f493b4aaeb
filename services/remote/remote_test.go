package remotesvc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/edurise/core"
	"github.com/trezcool/edurise/core/mirror"
)

func writeExport(t *testing.T, root, key, data string) {
	t.Helper()
	name := filepath.Join(root, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(data), 0o644))
}

func TestSnapshotFetcher(t *testing.T) {
	root := t.TempDir()
	writeExport(t, root, "exports/school1/school.json", `{"school_name": "Hillside Academy", "founded": 1998}`)
	writeExport(t, root, "exports/school1/students.json", `{
		"s2": {"name": "Ravi", "score": 12.5, "tags": ["prefect"]},
		"s1": {"name": "Asha", "score": 90071992547409931},
		"junk": 42
	}`)
	writeExport(t, root, "exports/school1/classes.json", `{"c1": `)
	writeExport(t, root, "exports/school2/school.json", `{}`)

	f := NewSnapshotFetcher(DirStore{Root: root}, "/exports/")
	ctx := context.Background()

	t.Run("school", func(t *testing.T) {
		doc, err := f.FetchSchool(ctx, "school1")
		require.NoError(t, err)
		assert.Equal(t, "school1", doc.ID)
		assert.True(t, doc.Fields["founded"].Equal(mirror.Int(1998)))
		assert.True(t, doc.Fields["school_name"].Equal(mirror.String("Hillside Academy")))
	})

	t.Run("missing school", func(t *testing.T) {
		_, err := f.FetchSchool(ctx, "ghost")
		assert.True(t, errors.Is(err, mirror.ErrSchoolNotFound), "error = %v", err)
	})

	t.Run("collection", func(t *testing.T) {
		docs, err := f.FetchCollection(ctx, "school1", "students")
		require.NoError(t, err)
		require.Len(t, docs, 3)

		// sorted by id; the non-object entry comes back keyless
		assert.Equal(t, "", docs[0].ID)
		assert.Equal(t, "s1", docs[1].ID)
		assert.Equal(t, "s2", docs[2].ID)
		assert.True(t, docs[1].Fields["score"].Equal(mirror.Int(90071992547409931)), "large ints keep their precision")
		assert.True(t, docs[2].Fields["score"].Equal(mirror.Float(12.5)))
		assert.Equal(t, mirror.KindList, docs[2].Fields["tags"].Kind())
	})

	t.Run("missing collection", func(t *testing.T) {
		docs, err := f.FetchCollection(ctx, "school1", "analytics")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("corrupt collection", func(t *testing.T) {
		_, err := f.FetchCollection(ctx, "school1", "classes")
		assert.True(t, mirror.IsRemoteUnavailable(err), "error = %v", err)
	})

	t.Run("list schools", func(t *testing.T) {
		ids, err := f.ListSchools(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"school1", "school2"}, ids)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := f.FetchCollection(cctx, "school1", "students")
		assert.True(t, mirror.IsRemoteUnavailable(err), "error = %v", err)
		assert.True(t, errors.Is(err, context.Canceled), "error = %v", err)
	})
}

func TestMemoryFetcher(t *testing.T) {
	f := NewMemoryFetcher()
	ctx := context.Background()
	f.PutSchool("school1", map[string]mirror.Value{"school_name": mirror.String("Hillside")})
	f.Put("school1", "staff", mirror.Document{ID: "t1"})

	_, err := f.FetchSchool(ctx, "school2")
	assert.Equal(t, mirror.ErrSchoolNotFound, err)

	docs, err := f.FetchCollection(ctx, "school1", "staff")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	f.Fail("staff", errors.New("quota exceeded"))
	_, err = f.FetchCollection(ctx, "school1", "staff")
	assert.True(t, mirror.IsRemoteUnavailable(err), "error = %v", err)
	f.Fail("staff", nil)

	release := f.Block("staff")
	done := make(chan error, 1)
	go func() {
		_, err := f.FetchCollection(ctx, "school1", "staff")
		done <- err
	}()
	select {
	case <-done:
		t.Fatal("FetchCollection() returned while blocked")
	default:
	}
	release()
	release() // idempotent
	require.NoError(t, <-done)

	assert.Equal(t, 4, f.Calls("staff"))
	assert.Equal(t, 1, f.Calls("school"))

	ids, err := f.ListSchools(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"school1"}, ids)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		bucket  string
		want    interface{}
		wantErr bool
	}{
		{name: "memory", kind: "memory", want: &MemoryFetcher{}},
		{name: "dir", kind: "dir", bucket: t.TempDir(), want: &SnapshotFetcher{}},
		{name: "unknown", kind: "ftp", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := new(core.Config)
			conf.Remote.Kind = tt.kind
			conf.Remote.Bucket = tt.bucket
			got, err := New(context.Background(), conf)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, got)
		})
	}
}
