package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/coldpaw/snatch/internal/config"
)

var ytdlpErrorRe = regexp.MustCompile(`(?i)ERROR[:\s]+(.+?)(?:\n|$)`)

type DownloadResult struct {
	Path string
	Ext  string
	Size int64
}

// ProbeDuration asks yt-dlp for the media duration without
// transferring any bytes. Returns (0, false, nil) when the site simply
// doesn't report one.
func ProbeDuration(ctx context.Context, rawURL string) (float64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, config.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, config.YtdlpPath,
		"--no-playlist",
		"--skip-download",
		"--print", "duration",
		rawURL,
	)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			if m := ytdlpErrorRe.FindStringSubmatch(string(exitErr.Stderr)); len(m) > 1 {
				return 0, false, fmt.Errorf("%s", strings.TrimSpace(m[1]))
			}
		}
		// Probe failures are not fatal; the post-download check covers
		// for them.
		return 0, false, nil
	}

	s := strings.TrimSpace(string(out))
	if s == "" || s == "NA" || s == "None" {
		return 0, false, nil
	}
	dur, err := strconv.ParseFloat(s, 64)
	if err != nil || dur <= 0 {
		return 0, false, nil
	}
	return dur, true, nil
}

// DownloadMedia fetches the URL via yt-dlp into the media directory.
// The output file is named by job ID so it can be found (and cleaned
// up) later.
func DownloadMedia(ctx context.Context, rawURL, jobID string) (*DownloadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, config.DownloadTimeout)
	defer cancel()

	outTemplate := filepath.Join(config.MediaDir, jobID+".%(ext)s")

	cmd := exec.CommandContext(ctx, config.YtdlpPath,
		"--no-playlist",
		"--newline",
		"-f", "b[ext=mp4]/bv*+ba/b",
		"--merge-output-format", "mp4",
		"-o", outTemplate,
		rawURL,
	)

	stderr, _ := cmd.StderrPipe()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	var stderrOutput strings.Builder
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		stderrOutput.WriteString(scanner.Text() + "\n")
	}

	if err := cmd.Wait(); err != nil {
		errMsg := "Download failed"
		if m := ytdlpErrorRe.FindStringSubmatch(stderrOutput.String()); len(m) > 1 {
			errMsg = strings.TrimSpace(m[1])
		}
		return nil, fmt.Errorf("%s", errMsg)
	}

	return findDownloadedFile(jobID)
}

func findDownloadedFile(jobID string) (*DownloadResult, error) {
	entries, err := os.ReadDir(config.MediaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read media dir: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, jobID+".") {
			continue
		}
		if strings.HasSuffix(name, ".part") || strings.Contains(name, ".part-Frag") || strings.HasSuffix(name, ".ytdl") {
			continue
		}
		fullPath := filepath.Join(config.MediaDir, name)
		info, err := os.Stat(fullPath)
		if err != nil {
			continue
		}
		ext := strings.TrimPrefix(filepath.Ext(name), ".")
		return &DownloadResult{Path: fullPath, Ext: ext, Size: info.Size()}, nil
	}

	return nil, fmt.Errorf("downloaded file not found")
}

// FileDuration probes a local file's duration with ffprobe.
func FileDuration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, config.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, config.FfprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	dur, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil || dur <= 0 {
		return 0, fmt.Errorf("could not determine duration")
	}
	return dur, nil
}
