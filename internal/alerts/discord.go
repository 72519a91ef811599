// Package alerts posts operator notifications to an optional Discord
// webhook. Everything here is fire-and-forget.
package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coldpaw/snatch/internal/config"
)

var (
	mu                sync.Mutex
	categoryCooldowns = make(map[string]time.Time)
)

const (
	colorOrange = 0xFFA500
	colorRed    = 0xFF4444
	colorGreen  = 0x2ECC71
)

type embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Fields      []field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp"`
	Footer      *footer `json:"footer,omitempty"`
}

type field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type footer struct {
	Text string `json:"text"`
}

type payload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds"`
}

func send(category string, cooldown time.Duration, ping bool, color int, title, description string, fields map[string]string) {
	if !config.DiscordAlerts || config.DiscordWebhookURL == "" {
		return
	}

	mu.Lock()
	now := time.Now()
	if cooldown > 0 {
		if last, ok := categoryCooldowns[category]; ok && now.Sub(last) < cooldown {
			mu.Unlock()
			return
		}
	}
	categoryCooldowns[category] = now
	mu.Unlock()

	var embedFields []field
	for k, v := range fields {
		if v == "" {
			continue
		}
		if len(v) > 1024 {
			v = v[:1021] + "..."
		}
		embedFields = append(embedFields, field{Name: k, Value: v, Inline: true})
	}

	p := payload{
		Embeds: []embed{{
			Title:       title,
			Description: truncate(description, 2048),
			Color:       color,
			Fields:      embedFields,
			Timestamp:   now.UTC().Format(time.RFC3339),
			Footer:      &footer{Text: "snatch"},
		}},
	}

	if ping && config.DiscordPingUserID != "" {
		p.Content = fmt.Sprintf("<@%s>", config.DiscordPingUserID)
	}

	body, _ := json.Marshal(p)
	go func() {
		resp, err := http.Post(config.DiscordWebhookURL, "application/json", bytes.NewReader(body))
		if err != nil {
			log.Printf("[Alerts] send failed: %v", err)
			return
		}
		resp.Body.Close()
	}()
}

func ServerStarted() {
	send("server-start", 0, false, colorGreen, "Bot Started", fmt.Sprintf("snatch %s is up, admin API on :%s", config.Version, config.Port), nil)
}

func ServerStopping() {
	send("server-stop", 0, false, colorOrange, "Bot Stopping", "snatch is shutting down", nil)
}

func DownloadFailed(jobID, url string, err error) {
	send("download", 5*time.Second, true, colorRed, "Download Failed", err.Error(), map[string]string{
		"Job":   jobID,
		"URL":   truncate(url, 200),
		"Error": truncate(err.Error(), 500),
	})
}

func SendFailed(jobID, url string, err error) {
	send("send", 5*time.Second, true, colorRed, "Delivery Failed After Retries", err.Error(), map[string]string{
		"Job":   jobID,
		"URL":   truncate(url, 200),
		"Error": truncate(err.Error(), 500),
	})
}

func BlobUploadFailed(jobID, url string, err error) {
	send("blob", 10*time.Second, true, colorOrange, "Blob Upload Failed", err.Error(), map[string]string{
		"Job":   jobID,
		"URL":   truncate(url, 200),
		"Error": truncate(err.Error(), 500),
	})
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}
