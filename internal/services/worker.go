package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/coldpaw/snatch/internal/alerts"
	"github.com/coldpaw/snatch/internal/blob"
	"github.com/coldpaw/snatch/internal/progress"
	"github.com/coldpaw/snatch/internal/store"
	"github.com/coldpaw/snatch/internal/util"
)

const blobObjectPrefix = "media"

// Messenger is the primary delivery channel, as seen by the worker.
type Messenger interface {
	SendMessage(chatID int64, text string) (int, error)
	SendVideo(ctx context.Context, chatID int64, filePath, caption string) error
}

// BlobUploader is the overflow delivery channel. Nil disables it.
type BlobUploader interface {
	Upload(ctx context.Context, localPath, objectName string) (string, error)
}

// Worker runs one queued download end to end: probe, download, policy
// gates, delivery with retry, blob overflow. Each processed item gets
// exactly one terminal DownloadRecord and one user-facing outcome
// message.
type Worker struct {
	store         *store.Store
	messenger     Messenger
	tracker       *progress.Tracker
	blob          BlobUploader
	maxDuration   time.Duration
	maxSendSize   int64
	retrySchedule []time.Duration

	// Subprocess and clock seams, replaceable in tests.
	ProbeDuration func(ctx context.Context, url string) (float64, bool, error)
	Download      func(ctx context.Context, url, jobID string) (*DownloadResult, error)
	FileDuration  func(ctx context.Context, path string) (float64, error)
	Sleep         func(d time.Duration)
}

func NewWorker(st *store.Store, m Messenger, tracker *progress.Tracker, uploader BlobUploader, maxDuration time.Duration, maxSendSize int64, retrySchedule []time.Duration) *Worker {
	return &Worker{
		store:         st,
		messenger:     m,
		tracker:       tracker,
		blob:          uploader,
		maxDuration:   maxDuration,
		maxSendSize:   maxSendSize,
		retrySchedule: retrySchedule,
		ProbeDuration: ProbeDuration,
		Download:      DownloadMedia,
		FileDuration:  FileDuration,
		Sleep:         time.Sleep,
	}
}

// ShouldPreserve reports whether a job's media file must survive
// cleanup because its last outcome was a retryable delivery failure.
func (w *Worker) ShouldPreserve(jobID string) bool {
	recs, err := w.store.Downloads()
	if err != nil {
		return false
	}
	preserve := false
	for _, r := range recs {
		if r.ID != jobID {
			continue
		}
		preserve = r.Status == store.RecordErrorRetryable
	}
	return preserve
}

// Process is the queue Runner. A returned error marks the queue item
// as failed.
func (w *Worker) Process(item store.QueueItem) error {
	ctx := context.Background()
	short := util.ShortID(item.ID)
	startedAt := time.Now()

	w.appendRecord(store.DownloadRecord{
		ID:        item.ID,
		URL:       item.URL,
		ChatID:    item.ChatID,
		UserID:    item.UserID,
		Status:    store.RecordStarted,
		CreatedAt: startedAt,
	})
	w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventStarted})

	// Phase 1: duration by metadata, before any bytes move.
	w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventCheckingDuration})
	duration, durationKnown, err := w.ProbeDuration(ctx, item.URL)
	if err != nil {
		return w.fail(item, startedAt, 0, "", 0, err)
	}
	if durationKnown {
		if duration > w.maxDuration.Seconds() {
			return w.rejectDuration(item, startedAt, duration)
		}
		w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventDurationOK})
	}

	w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventDownloading})
	log.Printf("[Worker] [%s] Downloading %s", short, item.URL)
	res, err := w.Download(ctx, item.URL, item.ID)
	if err != nil {
		// yt-dlp can leave .part/.ytdl fragments behind on failure.
		util.CleanupJobFiles(item.ID)
		return w.fail(item, startedAt, duration, "", 0, err)
	}
	w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventDownloaded})
	log.Printf("[Worker] [%s] Downloaded %s (%s)", short, res.Path, util.FormatBytes(res.Size))

	if res.Size > w.maxSendSize {
		if w.blob == nil {
			return w.rejectSize(item, startedAt, duration, res)
		}
		return w.overflowUpload(ctx, item, startedAt, duration, res)
	}

	// Phase 2: the probe came up empty, so gate on the file itself.
	if !durationKnown {
		w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventCheckingDuration})
		duration, err = w.FileDuration(ctx, res.Path)
		if err != nil {
			util.CleanupJobFiles(item.ID)
			return w.fail(item, startedAt, 0, "", 0, fmt.Errorf("could not determine duration"))
		}
		if duration > w.maxDuration.Seconds() {
			util.CleanupJobFiles(item.ID)
			return w.rejectDuration(item, startedAt, duration)
		}
		w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventDurationOK})
	}

	return w.deliver(ctx, item, startedAt, duration, res)
}

// deliver hands the file to the primary channel, retrying transient
// network failures on the fixed backoff schedule. After the schedule
// is exhausted the file stays on disk for a later retry.
func (w *Worker) deliver(ctx context.Context, item store.QueueItem, startedAt time.Time, duration float64, res *DownloadResult) error {
	short := util.ShortID(item.ID)
	w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventSending})

	sendErr := w.sendVideo(ctx, item, res.Path)
	for attempt := 1; sendErr != nil && util.IsRetryableSendError(sendErr) && attempt <= len(w.retrySchedule); attempt++ {
		delay := w.retrySchedule[attempt-1]
		log.Printf("[Worker] [%s] Send failed (%v), retry %d/%d in %s", short, sendErr, attempt, len(w.retrySchedule), delay)
		w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventRetryingSend, Attempt: attempt})
		w.Sleep(delay)
		sendErr = w.sendVideo(ctx, item, res.Path)
	}

	if sendErr != nil {
		if util.IsRetryableSendError(sendErr) {
			// Schedule exhausted. Keep the file so a retry can skip
			// the re-download.
			w.appendRecord(store.DownloadRecord{
				ID:          item.ID,
				URL:         item.URL,
				ChatID:      item.ChatID,
				UserID:      item.UserID,
				Status:      store.RecordErrorRetryable,
				DurationSec: duration,
				FilePath:    res.Path,
				FileSize:    res.Size,
				Error:       sendErr.Error(),
				CreatedAt:   startedAt,
				CompletedAt: time.Now(),
			})
			w.sendText(item, "Sending kept failing due to network trouble. The file is saved, ask again later and it won't be re-downloaded.")
			w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventFailedRetryable, Detail: "network trouble while sending"})
			alerts.SendFailed(item.ID, item.URL, sendErr)
			return fmt.Errorf("send failed after retries: %w", sendErr)
		}
		os.Remove(res.Path)
		return w.fail(item, startedAt, duration, res.Path, res.Size, sendErr)
	}

	w.appendRecord(store.DownloadRecord{
		ID:          item.ID,
		URL:         item.URL,
		ChatID:      item.ChatID,
		UserID:      item.UserID,
		Status:      store.RecordSent,
		DurationSec: duration,
		FilePath:    res.Path,
		FileSize:    res.Size,
		CreatedAt:   startedAt,
		CompletedAt: time.Now(),
	})
	w.logConversation(item, "sent video", store.KindVideo)
	w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventSent})
	os.Remove(res.Path)
	return nil
}

// overflowUpload pushes an oversize file to blob storage instead of
// the primary channel. Single attempt, no automatic retry.
func (w *Worker) overflowUpload(ctx context.Context, item store.QueueItem, startedAt time.Time, duration float64, res *DownloadResult) error {
	w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventUploadingBlob})

	objectName := blob.ObjectName(blobObjectPrefix, res.Path)
	objectURL, err := w.blob.Upload(ctx, res.Path, objectName)
	if err != nil {
		w.appendRecord(store.DownloadRecord{
			ID:          item.ID,
			URL:         item.URL,
			ChatID:      item.ChatID,
			UserID:      item.UserID,
			Status:      store.RecordErrorBlobUpload,
			DurationSec: duration,
			FilePath:    res.Path,
			FileSize:    res.Size,
			Error:       err.Error(),
			CreatedAt:   startedAt,
			CompletedAt: time.Now(),
		})
		w.sendText(item, fmt.Sprintf("File is too large to send directly (%s) and the storage upload failed: %s", util.FormatBytes(res.Size), err.Error()))
		w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventBlobUploadFailed, Detail: err.Error()})
		alerts.BlobUploadFailed(item.ID, item.URL, err)
		os.Remove(res.Path)
		return fmt.Errorf("blob upload failed: %w", err)
	}

	w.appendRecord(store.DownloadRecord{
		ID:          item.ID,
		URL:         item.URL,
		ChatID:      item.ChatID,
		UserID:      item.UserID,
		Status:      store.RecordUploadedBlob,
		DurationSec: duration,
		FilePath:    res.Path,
		FileSize:    res.Size,
		CreatedAt:   startedAt,
		CompletedAt: time.Now(),
	})
	w.sendText(item, fmt.Sprintf("File is too large to send directly (%s). Download it here:\n%s", util.FormatBytes(res.Size), objectURL))
	w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventBlobUploaded})
	os.Remove(res.Path)
	return nil
}

func (w *Worker) rejectDuration(item store.QueueItem, startedAt time.Time, duration float64) error {
	human := util.FormatDuration(time.Duration(duration * float64(time.Second)))
	limit := util.FormatDuration(w.maxDuration)
	w.appendRecord(store.DownloadRecord{
		ID:          item.ID,
		URL:         item.URL,
		ChatID:      item.ChatID,
		UserID:      item.UserID,
		Status:      store.RecordRejectedDuration,
		DurationSec: duration,
		CreatedAt:   startedAt,
		CompletedAt: time.Now(),
	})
	w.sendText(item, fmt.Sprintf("Video is too long: %s (limit is %s).", human, limit))
	w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventRejectedDuration, Detail: fmt.Sprintf("%s is over the %s limit", human, limit)})
	return fmt.Errorf("rejected: duration %s over limit %s", human, limit)
}

func (w *Worker) rejectSize(item store.QueueItem, startedAt time.Time, duration float64, res *DownloadResult) error {
	human := util.FormatBytes(res.Size)
	limit := util.FormatBytes(w.maxSendSize)
	w.appendRecord(store.DownloadRecord{
		ID:          item.ID,
		URL:         item.URL,
		ChatID:      item.ChatID,
		UserID:      item.UserID,
		Status:      store.RecordRejectedSize,
		DurationSec: duration,
		FilePath:    res.Path,
		FileSize:    res.Size,
		CreatedAt:   startedAt,
		CompletedAt: time.Now(),
	})
	w.sendText(item, fmt.Sprintf("File is too big to send: %s (limit is %s).", human, limit))
	w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventRejectedSize, Detail: fmt.Sprintf("%s is over the %s limit", human, limit)})
	os.Remove(res.Path)
	return fmt.Errorf("rejected: size %s over limit %s", human, limit)
}

// fail is the catch-all terminal path for unexpected errors.
func (w *Worker) fail(item store.QueueItem, startedAt time.Time, duration float64, filePath string, fileSize int64, cause error) error {
	w.appendRecord(store.DownloadRecord{
		ID:          item.ID,
		URL:         item.URL,
		ChatID:      item.ChatID,
		UserID:      item.UserID,
		Status:      store.RecordError,
		DurationSec: duration,
		FilePath:    filePath,
		FileSize:    fileSize,
		Error:       cause.Error(),
		CreatedAt:   startedAt,
		CompletedAt: time.Now(),
	})
	userMsg := util.ToUserError(cause.Error())
	w.sendText(item, userMsg)
	w.tracker.Notify(item.ID, progress.Event{Kind: progress.EventFailed, Detail: userMsg})
	alerts.DownloadFailed(item.ID, item.URL, cause)
	return cause
}

func (w *Worker) sendVideo(ctx context.Context, item store.QueueItem, path string) error {
	return w.messenger.SendVideo(ctx, item.ChatID, path, item.URL)
}

// sendText delivers one outcome message and mirrors it into the
// conversation log. Both are best-effort on the error path.
func (w *Worker) sendText(item store.QueueItem, text string) {
	if _, err := w.messenger.SendMessage(item.ChatID, text); err != nil {
		log.Printf("[Worker] [%s] Failed to send message: %v", util.ShortID(item.ID), err)
	}
	w.logConversation(item, text, store.KindText)
}

func (w *Worker) logConversation(item store.QueueItem, text string, kind store.PayloadKind) {
	err := w.store.AppendConversation(store.ConversationEntry{
		ID:        uuid.NewString(),
		ChatID:    item.ChatID,
		UserID:    item.UserID,
		Direction: store.DirectionOut,
		Text:      text,
		Kind:      kind,
		CreatedAt: time.Now(),
	})
	if err != nil {
		log.Printf("[Worker] [%s] Failed to log conversation: %v", util.ShortID(item.ID), err)
	}
}

func (w *Worker) appendRecord(rec store.DownloadRecord) {
	if err := w.store.AppendDownload(rec); err != nil {
		log.Printf("[Worker] [%s] Failed to append download record: %v", util.ShortID(rec.ID), err)
	}
}
