package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var Version = "dev"

var (
	Port    string
	EnvMode string

	BotToken string

	DataDir     string
	MediaDir    string
	YtdlpPath   string
	FfprobePath string

	BlobSASURL   string
	BlobOverflow bool

	DiscordWebhookURL string
	DiscordPingUserID string
	DiscordAlerts     bool

	MaxDuration time.Duration
)

const (
	// Largest file the primary channel (bot video upload) accepts.
	MaxSendSize = 50 * 1024 * 1024

	MaxURLLength = 2048

	DiskSpaceMinGB = 2
	FileRetention  = 6 * time.Hour

	ProbeTimeout    = 90 * time.Second
	DownloadTimeout = 30 * time.Minute
	SendTimeout     = 5 * time.Minute
	UploadTimeout   = 10 * time.Minute
)

// Waits between delivery retry attempts, in order. The schedule length
// is also the retry limit.
var SendRetrySchedule = []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}

var LocalHostSuffixes = []string{
	".local",
	".internal",
	".lan",
	".home",
	".home.arpa",
}

func Load() {
	Port = envOrDefault("PORT", "3001")
	EnvMode = envOrDefault("ENV_MODE", "development")

	BotToken = os.Getenv("BOT_TOKEN")

	DataDir = envOrDefault("DATA_DIR", "data")
	MediaDir = filepath.Join(DataDir, "media")

	YtdlpPath = envOrDefault("YTDLP_PATH", "yt-dlp")
	FfprobePath = envOrDefault("FFPROBE_PATH", "ffprobe")

	BlobSASURL = os.Getenv("BLOB_CONTAINER_SAS_URL")
	BlobOverflow = BlobSASURL != ""
	if !BlobOverflow {
		log.Println("[Config] BLOB_CONTAINER_SAS_URL not set, oversize files will be rejected")
	}

	DiscordWebhookURL = os.Getenv("DISCORD_WEBHOOK_URL")
	DiscordPingUserID = os.Getenv("DISCORD_PING_USER_ID")
	DiscordAlerts = DiscordWebhookURL != ""

	maxMin, _ := strconv.Atoi(envOrDefault("MAX_DURATION_MIN", "180"))
	if maxMin < 1 {
		maxMin = 180
	}
	MaxDuration = time.Duration(maxMin) * time.Minute
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
