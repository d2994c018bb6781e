package telegram

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/wenli/memekeeper/internal/metrics"
	"github.com/wenli/memekeeper/pkg/ingest"
	"github.com/wenli/memekeeper/pkg/llm"
	"github.com/wenli/memekeeper/pkg/memecmd"
	"github.com/wenli/memekeeper/pkg/retrieval"
	"github.com/wenli/memekeeper/pkg/store"
)

const replyTimeout = 45 * time.Second

// Tunables is the subset of live settings the handler consults per message
type Tunables interface {
	ReplyProbability() float64
	MenuSampleCap() int
}

// Handler drives the chat behavior: text messages may trigger a generated
// reply with embedded memes, photo messages feed the ingestion pipeline.
type Handler struct {
	bot      *Bot
	store    *store.Store
	engine   *retrieval.Engine
	pipeline *ingest.Pipeline
	media    *Media
	provider llm.Provider
	model    string
	tunables Tunables
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	rng   *rand.Rand
	rngMu sync.Mutex
}

// HandlerParams collects the handler dependencies
type HandlerParams struct {
	Bot      *Bot
	Store    *store.Store
	Engine   *retrieval.Engine
	Pipeline *ingest.Pipeline
	Media    *Media
	Provider llm.Provider
	Model    string
	Tunables Tunables
	Metrics  *metrics.Metrics
}

// NewHandler creates a new message handler
func NewHandler(params HandlerParams) (*Handler, error) {
	if params.Bot == nil {
		return nil, fmt.Errorf("bot is required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("retrieval engine is required")
	}
	if params.Pipeline == nil {
		return nil, fmt.Errorf("ingest pipeline is required")
	}
	if params.Media == nil {
		params.Media = NewMedia(params.Bot)
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	if params.Tunables == nil {
		return nil, fmt.Errorf("tunables are required")
	}

	return &Handler{
		bot:      params.Bot,
		store:    params.Store,
		engine:   params.Engine,
		pipeline: params.Pipeline,
		media:    params.Media,
		provider: params.Provider,
		model:    params.Model,
		tunables: params.Tunables,
		metrics:  params.Metrics,
		logger:   params.Bot.logger.With().Str("module", "handler").Logger(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// HandleMessage processes incoming text messages
func (h *Handler) HandleMessage(update tgbotapi.Update) error {
	if update.Message == nil {
		return nil
	}

	msg := update.Message
	if h.metrics != nil {
		h.metrics.TelegramMessagesReceivedTotal.Inc()
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	if !h.shouldReply() {
		h.logger.Debug().
			Int64("chat_id", msg.Chat.ID).
			Msg("Skipping reply by probability gate")
		return nil
	}

	if err := h.bot.SendTyping(msg.Chat.ID); err != nil {
		h.logger.Debug().Err(err).Msg("Failed to send typing action")
	}

	reply, err := h.generateReply(text)
	if err != nil {
		if h.metrics != nil {
			h.metrics.TelegramErrorsTotal.Inc()
		}
		h.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("Reply generation failed")
		return nil
	}

	if h.metrics != nil {
		h.metrics.RepliesGeneratedTotal.Inc()
	}

	return h.deliver(msg.Chat.ID, msg.MessageID, reply)
}

// HandleMedia feeds incoming photos to the ingestion pipeline
func (h *Handler) HandleMedia(update tgbotapi.Update) error {
	if update.Message == nil {
		return nil
	}

	msg := update.Message
	if h.metrics != nil {
		h.metrics.TelegramMessagesReceivedTotal.Inc()
	}

	fileID, ok := PhotoFileID(msg)
	if !ok {
		return nil
	}

	url, err := h.media.FileURL(fileID)
	if err != nil {
		// An oversized or unresolvable file is not an error for the chat
		h.logger.Debug().Err(err).Str("file_id", fileID).Msg("Skipping media")
		return nil
	}

	h.logger.Debug().
		Int64("chat_id", msg.Chat.ID).
		Str("file_id", fileID).
		Msg("Photo queued for ingestion")

	// Ingestion must never block update processing
	go h.pipeline.Process(context.Background(), url, msg.Caption)

	return nil
}

// shouldReply applies the reply probability gate
func (h *Handler) shouldReply() bool {
	p := h.tunables.ReplyProbability()
	if p >= 1 {
		return true
	}
	if p <= 0 {
		return false
	}

	h.rngMu.Lock()
	defer h.rngMu.Unlock()
	return h.rng.Float64() < p
}

// generateReply asks the model for a reply, offering the meme menu
func (h *Handler) generateReply(text string) (string, error) {
	menu := h.engine.SampleMenu(h.tunables.MenuSampleCap())

	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	reply, err := h.provider.Complete(ctx, llm.Request{
		Model:        h.model,
		SystemPrompt: replySystemPrompt(menu),
		Prompt:       text,
		MaxTokens:    512,
		Temperature:  0.8,
	})
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}

	return reply, nil
}

// deliver rewrites the generator output and sends the resulting segments in
// order
func (h *Handler) deliver(chatID int64, replyToID int, reply string) error {
	segments := memecmd.Rewrite(reply, h.engine)

	first := true
	for _, seg := range segments {
		var err error

		switch seg.Kind {
		case memecmd.SegmentText:
			if first {
				err = h.bot.SendMessageWithReply(chatID, seg.Text, replyToID)
			} else {
				err = h.bot.SendMessage(chatID, seg.Text)
			}
		case memecmd.SegmentMedia:
			err = h.bot.SendPhotoFile(chatID, h.store.PayloadPath(seg.Record.ID), "")
			if err == nil && h.metrics != nil {
				h.metrics.MemesSentTotal.WithLabelValues("fuzzy").Inc()
			}
		}

		if err != nil {
			if h.metrics != nil {
				h.metrics.TelegramErrorsTotal.Inc()
			}
			return fmt.Errorf("failed to deliver segment: %w", err)
		}

		if h.metrics != nil {
			h.metrics.TelegramMessagesSentTotal.Inc()
		}
		first = false
	}

	return nil
}

// replySystemPrompt builds the generator instructions, including the meme
// menu and the insertion directive
func replySystemPrompt(menu []string) string {
	var b strings.Builder

	b.WriteString("You are a playful chat companion in a group chat. ")
	b.WriteString("Reply briefly and casually, in the language of the incoming message.\n\n")

	if len(menu) > 0 {
		b.WriteString("You may attach one meme image to your reply. Available memes:\n")
		for _, desc := range menu {
			b.WriteString("- ")
			b.WriteString(desc)
			b.WriteString("\n")
		}
		b.WriteString("\nTo attach one, put the directive ")
		b.WriteString(memecmd.Marker)
		b.WriteString("<description> on its own line, using a description from the list. ")
		b.WriteString("Attach a meme only when it genuinely fits; most replies need none.\n")
	}

	return b.String()
}
