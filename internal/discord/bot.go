// Package discord answers channel messages that mention the bot by running
// the full pipeline and replying with the grounded output.
package discord

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/igoryan-dao/quill/internal/engine"
)

// Discord rejects messages above 2000 characters.
const maxMessageLen = 1900

// Bot answers mentions and DMs with engine runs.
type Bot struct {
	session   *discordgo.Session
	engine    *engine.Engine
	namespace string
}

// New creates a Discord bot over the given token.
func New(token string, eng *engine.Engine, namespace string) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	b := &Bot{
		session:   session,
		engine:    eng,
		namespace: namespace,
	}

	session.AddHandler(b.handleMessage)
	session.AddHandler(b.handleReady)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	return b, nil
}

// Start opens the gateway connection.
func (b *Bot) Start() error {
	log.Println("[Discord] Starting bot...")
	return b.session.Open()
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	log.Println("[Discord] Stopping bot...")
	return b.session.Close()
}

func (b *Bot) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	log.Printf("[Discord] Connected as %s#%s", r.User.Username, r.User.Discriminator)
}

// handleMessage runs the pipeline for DMs and messages that mention the
// bot; everything else in a guild channel is ignored.
func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	text, addressed := b.extractQuestion(s, m)
	if !addressed || text == "" {
		return
	}

	log.Printf("[Discord] Question from %s: %s", m.Author.Username, truncate(text, 80))
	s.ChannelTyping(m.ChannelID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result := b.engine.Run(ctx, engine.RunRequest{
		Goal:               text,
		NamespaceKnowledge: b.namespace,
	})
	b.reply(m.ChannelID, result.Output)
}

// extractQuestion returns the message text with the bot mention stripped,
// and whether the message was addressed to the bot at all. Direct messages
// are always addressed.
func (b *Bot) extractQuestion(s *discordgo.Session, m *discordgo.MessageCreate) (string, bool) {
	text := strings.TrimSpace(m.Content)
	if m.GuildID == "" {
		return text, true
	}
	for _, user := range m.Mentions {
		if user.ID == s.State.User.ID {
			text = strings.ReplaceAll(text, "<@"+user.ID+">", "")
			text = strings.ReplaceAll(text, "<@!"+user.ID+">", "")
			return strings.TrimSpace(text), true
		}
	}
	return "", false
}

func (b *Bot) reply(channelID, text string) {
	for _, part := range splitMessage(text, maxMessageLen) {
		if _, err := b.session.ChannelMessageSend(channelID, part); err != nil {
			log.Printf("[Discord] Failed to send reply: %v", err)
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

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
