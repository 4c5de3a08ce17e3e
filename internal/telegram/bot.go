// Package telegram runs a long-polling bot that answers questions by
// driving the full pipeline. Every incoming message from an allowed user
// becomes one engine run.
package telegram

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/gofrs/flock"

	"github.com/igoryan-dao/quill/internal/engine"
)

// Telegram rejects messages above 4096 characters.
const maxMessageLen = 4000

// Bot answers chat messages with engine runs.
type Bot struct {
	bot            *bot.Bot
	token          string
	allowedUserIDs map[int64]bool
	engine         *engine.Engine
	namespace      string

	cancel context.CancelFunc
}

// New creates a Telegram bot. An empty allowedIDs list admits everyone.
func New(token string, allowedIDs []int64, eng *engine.Engine, namespace string) (*Bot, error) {
	allowed := make(map[int64]bool)
	for _, id := range allowedIDs {
		allowed[id] = true
	}

	b := &Bot{
		token:          token,
		allowedUserIDs: allowed,
		engine:         eng,
		namespace:      namespace,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.handleUpdate),
		bot.WithErrorsHandler(func(err error) {
			if err == nil {
				return
			}
			if strings.Contains(strings.ToLower(err.Error()), "conflict") {
				log.Printf("[Telegram] Conflict detected, another instance holds this token. Stopping: %v", err)
				if b.cancel != nil {
					b.cancel()
				}
				return
			}
			log.Printf("[Telegram] Error: %v", err)
		}),
	}

	tgBot, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	b.bot = tgBot
	return b, nil
}

// Start begins long polling and blocks until ctx is done. A per-token file
// lock keeps a second process from polling the same bot.
func (b *Bot) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	defer b.cancel()

	homeDir, _ := os.UserHomeDir()
	tokenHash := sha256.Sum256([]byte(b.token))
	lockPath := filepath.Join(homeDir, ".quill", fmt.Sprintf("tg-bot-%s.lock", hex.EncodeToString(tokenHash[:8])))
	os.MkdirAll(filepath.Dir(lockPath), 0755)

	fileLock := flock.New(lockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		log.Printf("[Telegram] Lock error: %v", err)
		return
	}
	if !locked {
		log.Printf("[Telegram] Another process is already polling this token, skipping bot start")
		return
	}
	defer fileLock.Unlock()

	log.Println("[Telegram] Bot started, polling for messages...")
	b.bot.Start(ctx)
	log.Println("[Telegram] Bot stopped")
}

func (b *Bot) allowed(userID int64) bool {
	if len(b.allowedUserIDs) == 0 {
		return true
	}
	return b.allowedUserIDs[userID]
}

func (b *Bot) handleUpdate(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := update.Message
	if msg.From == nil || !b.allowed(msg.From.ID) {
		log.Printf("[Telegram] Ignoring message from unauthorized user %d", userID(msg))
		return
	}

	text := strings.TrimSpace(msg.Text)
	switch {
	case text == "/start" || text == "/help":
		b.reply(ctx, msg.Chat.ID, "Send me a question and I will answer it from the knowledge store.")
		return
	case strings.HasPrefix(text, "/"):
		b.reply(ctx, msg.Chat.ID, "Unknown command. Send a plain question instead.")
		return
	}

	log.Printf("[Telegram] Question from %d: %s", msg.From.ID, truncate(text, 80))
	tgBot.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: msg.Chat.ID,
		Action: models.ChatActionTyping,
	})

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	result := b.engine.Run(runCtx, engine.RunRequest{
		Goal:               text,
		NamespaceKnowledge: b.namespace,
	})
	b.reply(ctx, msg.Chat.ID, result.Output)
}

// reply sends text, splitting across messages when it exceeds the Telegram
// limit.
func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	for _, part := range splitMessage(text, maxMessageLen) {
		_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   part,
		})
		if err != nil {
			log.Printf("[Telegram] Failed to send reply: %v", err)
			return
		}
	}
}

// splitMessage cuts text into chunks of at most limit bytes, preferring to
// break at paragraph then line boundaries.
func splitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}
	var parts []string
	for len(text) > limit {
		cut := limit
		if i := strings.LastIndex(text[:limit], "\n\n"); i > limit/2 {
			cut = i
		} else if i := strings.LastIndex(text[:limit], "\n"); i > limit/2 {
			cut = i
		}
		parts = append(parts, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

func userID(msg *models.Message) int64 {
	if msg.From == nil {
		return 0
	}
	return msg.From.ID
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
