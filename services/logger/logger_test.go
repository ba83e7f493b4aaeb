package logsvc

import (
	"bytes"
	"errors"
	"log"
	"reflect"
	"strings"
	"testing"

	"github.com/trezcool/edurise/core"
)

func newTestLogger(t *testing.T) (*RollbarLogger, *bytes.Buffer) {
	conf, err := core.LoadConfig("TEST")
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	var buf bytes.Buffer
	return NewRollbarLogger(log.New(&buf, "", 0), conf), &buf
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger, _ := newTestLogger(t)
	err := errors.New("boom")

	got := logger.prepare("syncing", []interface{}{
		err,
		map[string]interface{}{"table": "students"},
		core.LogScope{SchoolID: "school1", TaskID: "t-1"},
	})
	want := []interface{}{
		"syncing",
		err,
		map[string]interface{}{"table": "students", "school_id": "school1", "task_id": "t-1"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("prepare() = %v; want %v", got, want)
	}

	if got := logger.prepare("plain", nil); len(got) != 1 {
		t.Errorf("prepare() = %v; want only the message", got)
	}
}

func TestRollbarLogger_print(t *testing.T) {
	logger, buf := newTestLogger(t)

	logger.Info("sync started", core.LogScope{SchoolID: "school1", TaskID: "t-1"})
	logger.Debug("no scope")
	logger.Warn("skipping students", errors.New("quota exceeded"), core.LogScope{SchoolID: "school2"})

	want := strings.Join([]string{
		"[school=school1 task=t-1] sync started",
		"no scope",
		"[school=school2] skipping students",
		"quota exceeded",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("output = %q; want %q", got, want)
	}
}

func TestAdapters(t *testing.T) {
	logger, buf := newTestLogger(t)

	GooseLogger{Logger: logger}.Printf("OK   %s (%v)\n", "00001_create_cache_tables.sql", "1ms")
	cl := CronLogger{Logger: logger}
	cl.Info("wake", "now", "12:00")
	cl.Error(errors.New("panic"), "job failed", "entry", 1, "dangling")

	out := buf.String()
	for _, want := range []string{
		"OK   00001_create_cache_tables.sql (1ms)\n",
		"cron: wake\nmap[now:12:00]\n",
		"cron: job failed\npanic\nmap[entry:1]\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output = %q; missing %q", out, want)
		}
	}
}
