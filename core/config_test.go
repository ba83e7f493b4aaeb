package core

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		conf, err := LoadConfig("test")
		if err != nil {
			t.Fatalf("LoadConfig() failed: %v", err)
		}
		if conf.Env != "TEST" || !conf.TestMode {
			t.Errorf("Env = %q, TestMode = %v; want TEST, true", conf.Env, conf.TestMode)
		}
		if conf.Database.Engine != "sqlite3" || conf.Database.MigrationPolicy != "versioned" {
			t.Errorf("Database = %+v", conf.Database)
		}
		if conf.Remote.Kind != "memory" || conf.Mirror.Concurrency != 1 || conf.Mirror.Timeout != 4*time.Minute {
			t.Errorf("Remote.Kind = %q, Mirror = %+v", conf.Remote.Kind, conf.Mirror)
		}
		if conf.Server.JWTExpirationDelta != 24*time.Hour {
			t.Errorf("JWTExpirationDelta = %v; want 24h", conf.Server.JWTExpirationDelta)
		}
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("TEST_MIRROR_CONCURRENCY", "4")
		t.Setenv("TEST_MIRROR_SCHOOLS", "school1, school2  school3")
		t.Setenv("TEST_MIRROR_TIMEOUT", "90s")
		t.Setenv("TEST_DATABASE_MIGRATIONPOLICY", " Destructive ")
		t.Setenv("TEST_REMOTE_KIND", "DIR")
		t.Setenv("TEST_REMOTE_BUCKET", "/srv/exports")

		conf, err := LoadConfig("TEST")
		if err != nil {
			t.Fatalf("LoadConfig() failed: %v", err)
		}
		if conf.Mirror.Concurrency != 4 || conf.Mirror.Timeout != 90*time.Second {
			t.Errorf("Mirror = %+v", conf.Mirror)
		}
		if want := []string{"school1", "school2", "school3"}; !reflect.DeepEqual(conf.Mirror.Schools, want) {
			t.Errorf("Mirror.Schools = %v; want %v", conf.Mirror.Schools, want)
		}
		if conf.Database.MigrationPolicy != "destructive" || conf.Remote.Kind != "dir" {
			t.Errorf("MigrationPolicy = %q, Remote.Kind = %q", conf.Database.MigrationPolicy, conf.Remote.Kind)
		}
	})

	invalid := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown remote", env: map[string]string{"TEST_REMOTE_KIND": "ftp"}},
		{name: "unknown policy", env: map[string]string{"TEST_DATABASE_MIGRATIONPOLICY": "yolo"}},
		{name: "firestore without project", env: map[string]string{"TEST_REMOTE_KIND": "firestore"}},
		{name: "dir without directory", env: map[string]string{"TEST_REMOTE_KIND": "dir"}},
		{name: "bad collection", env: map[string]string{"TEST_MIRROR_COLLECTIONS": "students, fees;drop"}},
		{name: "no concurrency", env: map[string]string{"TEST_MIRROR_CONCURRENCY": "0"}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig("TEST"); err == nil {
				t.Errorf("LoadConfig() succeeded; want a validation error")
			}
		})
	}
}
