package bot

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/coldpaw/snatch/internal/config"
	"github.com/coldpaw/snatch/internal/progress"
	"github.com/coldpaw/snatch/internal/queue"
	"github.com/coldpaw/snatch/internal/store"
	"github.com/coldpaw/snatch/internal/util"
)

const helpText = `Send me a link and I'll fetch the video for you.

I'll keep you posted while it downloads. Videos over the size limit get uploaded to storage and you'll receive a download link instead.`

// Bot is the Telegram front-end: it accepts messages, extracts and
// validates URLs, and admits jobs into the queue. It also implements
// the Messenger side the worker and progress reporter deliver through.
type Bot struct {
	api     *tgbotapi.BotAPI
	st      *store.Store
	q       *queue.Queue
	tracker *progress.Tracker
}

func New(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Client = &http.Client{Timeout: config.SendTimeout}
	return &Bot{api: api}, nil
}

// Attach wires the pipeline in. Separate from New because the worker
// needs the Bot as its Messenger before the queue can exist.
func (b *Bot) Attach(st *store.Store, q *queue.Queue, tracker *progress.Tracker) {
	b.st = st
	b.q = q
	b.tracker = tracker
}

func (b *Bot) Start() {
	log.Printf("[Bot] Logged in as @%s", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	go func() {
		for update := range updates {
			if update.Message == nil {
				continue
			}
			go b.handleMessage(update.Message)
		}
	}()
}

func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}

	b.logIn(chatID, userID, msg.MessageID, msg.Text)
	b.upsertSettings(chatID)

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			b.reply(chatID, helpText)
		default:
			b.reply(chatID, "Unknown command. Send me a video link instead.")
		}
		return
	}

	rawURL, found := util.ExtractURL(msg.Text)
	if !found {
		b.reply(chatID, "No URL found in your message. Send me a link to a video.")
		return
	}

	v := util.ValidateURL(rawURL)
	if !v.Valid {
		b.reply(chatID, v.Error)
		return
	}

	if free, err := util.FreeDiskGB(config.DataDir); err == nil && free < config.DiskSpaceMinGB {
		log.Printf("[Bot] Refusing job, only %.1fGB free", free)
		b.reply(chatID, "The server is low on disk space right now, try again later.")
		return
	}

	item := store.QueueItem{
		ID:     uuid.NewString(),
		ChatID: chatID,
		UserID: userID,
		URL:    v.URL,
	}

	ackID, err := b.SendMessage(chatID, "⏳ "+v.URL)
	if err != nil {
		log.Printf("[Bot] Failed to send ack: %v", err)
	} else {
		b.tracker.Track(item.ID, chatID, ackID, v.URL)
	}

	if err := b.enqueue(item); err != nil {
		log.Printf("[Bot] Enqueue failed: %v", err)
		b.reply(chatID, "Something went wrong admitting your request, try again.")
		return
	}
	log.Printf("[Bot] Queued %s for chat %d", util.ShortID(item.ID), chatID)
}

// enqueue seeds the status history before the item is admitted, so the
// queued line always lands ahead of anything the worker reports.
func (b *Bot) enqueue(item store.QueueItem) error {
	pos := b.q.QueuedCount() + 1
	b.tracker.Notify(item.ID, progress.Event{Kind: progress.EventQueued, Position: pos})
	if err := b.q.Enqueue(item); err != nil {
		b.tracker.Close(item.ID)
		return err
	}
	return nil
}

// reply sends and logs an outbound text without tracking failures.
func (b *Bot) reply(chatID int64, text string) {
	msgID, err := b.SendMessage(chatID, text)
	if err != nil {
		log.Printf("[Bot] Failed to reply to chat %d: %v", chatID, err)
		return
	}
	b.logOut(chatID, msgID, text)
}

// SendMessage implements the plain-text outbound operation. Returns
// the sent message's ID so it can be edited later.
func (b *Bot) SendMessage(chatID int64, text string) (int, error) {
	sent, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// EditMessageText replaces a previously sent message's text in place.
func (b *Bot) EditMessageText(chatID int64, messageID int, text string) error {
	_, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text))
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

// SendVideo delivers a local file as a video attachment.
func (b *Bot) SendVideo(ctx context.Context, chatID int64, filePath, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(filePath))
	video.Caption = caption
	video.SupportsStreaming = true
	_, err := b.api.Send(video)
	return err
}

func (b *Bot) logIn(chatID, userID int64, messageID int, text string) {
	err := b.st.AppendConversation(store.ConversationEntry{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		UserID:    userID,
		MessageID: messageID,
		Direction: store.DirectionIn,
		Text:      text,
		Kind:      store.KindText,
		CreatedAt: time.Now(),
	})
	if err != nil {
		log.Printf("[Bot] Failed to log inbound message: %v", err)
	}
}

func (b *Bot) logOut(chatID int64, messageID int, text string) {
	err := b.st.AppendConversation(store.ConversationEntry{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		MessageID: messageID,
		Direction: store.DirectionOut,
		Text:      text,
		Kind:      store.KindText,
		CreatedAt: time.Now(),
	})
	if err != nil {
		log.Printf("[Bot] Failed to log outbound message: %v", err)
	}
}

// upsertSettings refreshes the per-chat preference record on every
// inbound message. Failures never block the pipeline.
func (b *Bot) upsertSettings(chatID int64) {
	format := "mp4"
	if existing, ok, err := b.st.Settings(chatID); err == nil && ok && existing.Format != "" {
		format = existing.Format
	}
	if err := b.st.UpsertSettings(chatID, format); err != nil {
		log.Printf("[Bot] Failed to upsert settings for chat %d: %v", chatID, err)
	}
}
