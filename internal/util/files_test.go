package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coldpaw/snatch/internal/config"
)

func useTempMediaDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev := config.MediaDir
	config.MediaDir = dir
	t.Cleanup(func() { config.MediaDir = prev })
	return dir
}

func writeMediaFile(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if age > 0 {
		old := time.Now().Add(-age)
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func TestJobIDFromFilename(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"abc123.mp4", "abc123"},
		{"abc123.mp4.part", "abc123"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		if got := JobIDFromFilename(tt.name); got != tt.want {
			t.Errorf("JobIDFromFilename(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestCleanupMediaFilesKeepsFreshAndPreserved(t *testing.T) {
	dir := useTempMediaDir(t)
	old := config.FileRetention + time.Hour

	stale := writeMediaFile(t, dir, "stale-job.mp4", old)
	fresh := writeMediaFile(t, dir, "fresh-job.mp4", 0)
	kept := writeMediaFile(t, dir, "kept-job.mp4", old)

	CleanupMediaFiles(func(jobID string) bool {
		return jobID == "kept-job"
	})

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale unpreserved file survived cleanup")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh file was removed")
	}
	if _, err := os.Stat(kept); err != nil {
		t.Error("preserved job's file was removed")
	}
}

func TestCleanupMediaFilesWithoutPredicate(t *testing.T) {
	dir := useTempMediaDir(t)
	stale := writeMediaFile(t, dir, "stale-job.mp4", config.FileRetention+time.Hour)

	CleanupMediaFiles(nil)

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale file survived cleanup without a preserve predicate")
	}
}

func TestCleanupJobFilesRemovesFragments(t *testing.T) {
	dir := useTempMediaDir(t)

	mine := []string{"job1.mp4", "job1.mp4.part", "job1.mp4.ytdl"}
	for _, name := range mine {
		writeMediaFile(t, dir, name, 0)
	}
	other := writeMediaFile(t, dir, "job2.mp4", 0)

	CleanupJobFiles("job1")

	for _, name := range mine {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s survived job cleanup", name)
		}
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("another job's file was removed")
	}
}
