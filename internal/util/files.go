package util

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coldpaw/snatch/internal/config"
)

func EnsureMediaDir() {
	if err := os.MkdirAll(config.MediaDir, 0755); err != nil {
		log.Printf("[Files] Failed to create media dir: %v", err)
	}
}

// JobIDFromFilename recovers the job ID from a downloaded media file
// name. Files are written as "<jobID>.<ext>".
func JobIDFromFilename(name string) string {
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

// CleanupMediaFiles removes downloaded media older than the retention
// window. Files whose job shouldPreserve reports true are kept so a
// later retry can reuse them without re-downloading.
func CleanupMediaFiles(shouldPreserve func(jobID string) bool) {
	now := time.Now()
	entries, err := os.ReadDir(config.MediaDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= config.FileRetention {
			continue
		}
		if shouldPreserve != nil && shouldPreserve(JobIDFromFilename(e.Name())) {
			continue
		}
		p := filepath.Join(config.MediaDir, e.Name())
		if err := os.Remove(p); err == nil {
			log.Printf("[Cleanup] Removed old media: %s", e.Name())
		}
	}
}

// CleanupJobFiles deletes every media file belonging to one job.
func CleanupJobFiles(jobID string) {
	entries, err := os.ReadDir(config.MediaDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), jobID) {
			p := filepath.Join(config.MediaDir, e.Name())
			if err := os.Remove(p); err == nil {
				log.Printf("[Cleanup] Removed: %s", e.Name())
			}
		}
	}
}

func StartCleanupInterval(shouldPreserve func(jobID string) bool) {
	ticker := time.NewTicker(30 * time.Minute)
	go func() {
		for range ticker.C {
			CleanupMediaFiles(shouldPreserve)
		}
	}()
}

func FormatBytes(n int64) string {
	const mb = 1024 * 1024
	if n >= 1024*mb {
		return fmt.Sprintf("%.2fGB", float64(n)/(1024*mb))
	}
	return fmt.Sprintf("%.1fMB", float64(n)/mb)
}

func FormatDuration(d time.Duration) string {
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
