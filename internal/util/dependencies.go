package util

import (
	"fmt"
	"os/exec"
)

// CheckDependencies reports whether the external tools the pipeline
// shells out to are reachable. Missing required tools are reported but
// not fatal here; the first job will fail with a clear error.
func CheckDependencies(ytdlpPath, ffprobePath string) {
	deps := []struct {
		name string
		bin  string
	}{
		{"yt-dlp", ytdlpPath},
		{"ffprobe", ffprobePath},
	}

	for _, dep := range deps {
		path, err := exec.LookPath(dep.bin)
		if err != nil {
			fmt.Printf("✗ %s not found (REQUIRED)\n", dep.name)
		} else {
			fmt.Printf("✓ %s found: %s\n", dep.name, path)
		}
	}
}
