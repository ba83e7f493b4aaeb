package scheduler

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/edurise/core/mirror"
	testutil "github.com/trezcool/edurise/tests"
)

type syncerMock struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
}

func (m *syncerMock) Sync(_ context.Context, schoolID string) (mirror.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, schoolID)
	if err := m.errs[schoolID]; err != nil {
		return mirror.Report{}, err
	}
	return mirror.Report{TaskID: "task-" + schoolID, SchoolID: schoolID}, nil
}

type listerFunc func(ctx context.Context) ([]string, error)

func (f listerFunc) ListSchools(ctx context.Context) ([]string, error) { return f(ctx) }

func TestScheduler_Run(t *testing.T) {
	logger := testutil.NewLogger(testutil.NewConfig(t))
	remoteSchools := listerFunc(func(context.Context) ([]string, error) {
		return []string{"school7", "school8"}, nil
	})

	tests := []struct {
		name      string
		lister    SchoolLister
		schools   []string
		errs      map[string]error
		wantCalls []string
		wantRuns  []string
	}{
		{
			name:      "configured schools",
			lister:    remoteSchools,
			schools:   []string{"school1", "school2"},
			wantCalls: []string{"school1", "school2"},
			wantRuns:  []string{"school1", "school2"},
		},
		{
			name:      "listed schools",
			lister:    remoteSchools,
			wantCalls: []string{"school7", "school8"},
			wantRuns:  []string{"school7", "school8"},
		},
		{
			name:      "no lister",
			wantCalls: []string{},
			wantRuns:  []string{},
		},
		{
			name:    "busy & failing schools",
			schools: []string{"school1", "school2", "school3"},
			errs: map[string]error{
				"school1": mirror.ErrSyncInProgress,
				"school2": errors.New("boom"),
			},
			wantCalls: []string{"school1", "school2", "school3"},
			wantRuns:  []string{"school3"},
		},
		{
			name: "lister failure",
			lister: listerFunc(func(context.Context) ([]string, error) {
				return nil, errors.New("offline")
			}),
			wantCalls: []string{},
			wantRuns:  []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &syncerMock{errs: tt.errs, calls: []string{}}
			s, err := New(syncer, tt.lister, logger, "@every 1h", tt.schools, time.Minute)
			if err != nil {
				t.Fatalf("New() failed: %v", err)
			}

			runs := []string{}
			for _, report := range s.Run(context.Background()) {
				runs = append(runs, report.SchoolID)
			}
			if !reflect.DeepEqual(syncer.calls, tt.wantCalls) {
				t.Errorf("Sync() calls = %v; want %v", syncer.calls, tt.wantCalls)
			}
			if !reflect.DeepEqual(runs, tt.wantRuns) {
				t.Errorf("Run() reports = %v; want %v", runs, tt.wantRuns)
			}
		})
	}
}

func TestScheduler_Run_cancelled(t *testing.T) {
	logger := testutil.NewLogger(testutil.NewConfig(t))
	syncer := &syncerMock{}
	s, err := New(syncer, nil, logger, "*/5 * * * *", []string{"school1", "school2"}, 0)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if reports := s.Run(ctx); len(reports) != 0 {
		t.Errorf("Run() = %d reports; want 0", len(reports))
	}
	if len(syncer.calls) != 0 {
		t.Errorf("Sync() calls = %v; want none", syncer.calls)
	}
}

func TestScheduler_lifecycle(t *testing.T) {
	logger := testutil.NewLogger(testutil.NewConfig(t))
	if _, err := New(&syncerMock{}, nil, logger, "every tuesday", nil, 0); err == nil {
		t.Error("New() succeeded with a bad schedule; want an error")
	}

	s, err := New(&syncerMock{}, nil, logger, "@every 1h", []string{"school1"}, 0)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	s.Start()
	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Error("Stop() did not finish")
	}
}
