// Package progress mirrors pipeline state to the requesting user by
// editing a single status message in place. It is strictly
// best-effort: nothing in here may fail the pipeline it observes.
package progress

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/coldpaw/snatch/internal/util"
)

const maxHistory = 8

type EventKind int

const (
	EventQueued EventKind = iota
	EventStarted
	EventCheckingDuration
	EventDurationOK
	EventDownloading
	EventDownloaded
	EventSending
	EventRetryingSend
	EventUploadingBlob
	EventSent
	EventBlobUploaded
	EventRejectedDuration
	EventRejectedSize
	EventFailed
	EventFailedRetryable
	EventBlobUploadFailed
)

// Event is one pipeline state change for a tracked job. Only the
// fields the kind needs are set.
type Event struct {
	Kind     EventKind
	Position int    // EventQueued
	Attempt  int    // EventRetryingSend
	Detail   string // rejection/failure reason
}

// describe maps every event kind onto a status line and whether it
// ends the session. The switch is exhaustive over EventKind.
func describe(e Event) (status string, terminal bool) {
	switch e.Kind {
	case EventQueued:
		if e.Position > 0 {
			return fmt.Sprintf("queued (#%d in line)", e.Position), false
		}
		return "queued", false
	case EventStarted:
		return "starting", false
	case EventCheckingDuration:
		return "checking duration", false
	case EventDurationOK:
		return "duration check passed", false
	case EventDownloading:
		return "downloading", false
	case EventDownloaded:
		return "download complete", false
	case EventSending:
		return "sending", false
	case EventRetryingSend:
		return fmt.Sprintf("send failed, retrying (attempt %d)", e.Attempt), false
	case EventUploadingBlob:
		return "too large to send directly, uploading to storage", false
	case EventSent:
		return "sent ✓", true
	case EventBlobUploaded:
		return "uploaded to storage ✓", true
	case EventRejectedDuration:
		return "rejected: " + e.Detail, true
	case EventRejectedSize:
		return "rejected: " + e.Detail, true
	case EventFailed:
		return "failed: " + e.Detail, true
	case EventFailedRetryable:
		return "failed: " + e.Detail + " (file kept for retry)", true
	case EventBlobUploadFailed:
		return "storage upload failed: " + e.Detail, true
	default:
		return "working", false
	}
}

// Editor is the single outward operation the reporter needs.
type Editor interface {
	EditMessageText(chatID int64, messageID int, text string) error
}

type session struct {
	mu           sync.Mutex // serializes the edit chain per job
	chatID       int64
	messageID    int
	url          string
	lastRendered string
	history      []string
	closed       bool
}

// Tracker holds one ephemeral session per in-flight job. Sessions die
// on the first terminal event and are never resurrected.
type Tracker struct {
	mu       sync.Mutex
	editor   Editor
	sessions map[string]*session
}

func NewTracker(editor Editor) *Tracker {
	return &Tracker{
		editor:   editor,
		sessions: make(map[string]*session),
	}
}

// Track starts mirroring a job's state onto an already-sent message.
func (t *Tracker) Track(jobID string, chatID int64, messageID int, url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[jobID]; exists {
		return
	}
	t.sessions[jobID] = &session{
		chatID:    chatID,
		messageID: messageID,
		url:       url,
	}
}

// Notify applies a pipeline event to the job's status message. Unknown
// jobs and events after a terminal one are silently ignored; edit
// failures are logged and swallowed.
func (t *Tracker) Notify(jobID string, e Event) {
	t.mu.Lock()
	s := t.sessions[jobID]
	t.mu.Unlock()
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	status, terminal := describe(e)

	if len(s.history) == 0 || s.history[len(s.history)-1] != status {
		s.history = append(s.history, status)
		if len(s.history) > maxHistory {
			s.history = s.history[len(s.history)-maxHistory:]
		}
	}

	rendered := render(s.url, s.history)
	if rendered != s.lastRendered {
		s.lastRendered = rendered
		if err := t.editor.EditMessageText(s.chatID, s.messageID, rendered); err != nil {
			log.Printf("[Progress] Edit failed for job %s: %v", util.ShortID(jobID), err)
		}
	}

	if terminal {
		s.closed = true
		t.mu.Lock()
		delete(t.sessions, jobID)
		t.mu.Unlock()
	}
}

// Close tears a session down without a terminal event, e.g. when
// admission fails after the status message was already sent.
func (t *Tracker) Close(jobID string) {
	t.mu.Lock()
	s := t.sessions[jobID]
	delete(t.sessions, jobID)
	t.mu.Unlock()
	if s != nil {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	}
}

func render(url string, history []string) string {
	var b strings.Builder
	b.WriteString(url)
	b.WriteString("\n")
	for _, line := range history {
		b.WriteString("\n• ")
		b.WriteString(line)
	}
	return b.String()
}
