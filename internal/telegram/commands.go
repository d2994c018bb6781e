package telegram

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/wenli/memekeeper/internal/metrics"
	"github.com/wenli/memekeeper/pkg/retrieval"
	"github.com/wenli/memekeeper/pkg/store"
)

// Commands dispatches bot commands
type Commands struct {
	bot      *Bot
	store    *store.Store
	engine   *retrieval.Engine
	media    *Media
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	handlers map[string]CommandFunc

	rng   *rand.Rand
	rngMu sync.Mutex
}

// CommandFunc is a function that handles a command
type CommandFunc func(CommandContext) error

// CommandContext contains command metadata
type CommandContext struct {
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
	Command   string
	Args      []string
	RawArgs   string
	ReplyTo   *tgbotapi.Message
}

// NewCommands creates the command dispatcher with the built-in commands
// registered
func NewCommands(bot *Bot, st *store.Store, engine *retrieval.Engine, media *Media, m *metrics.Metrics) *Commands {
	c := &Commands{
		bot:      bot,
		store:    st,
		engine:   engine,
		media:    media,
		metrics:  m,
		logger:   bot.logger.With().Str("module", "commands").Logger(),
		handlers: make(map[string]CommandFunc),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	c.Register("meme", c.handleMeme)
	c.Register("save", c.handleSave)
	c.Register("start", c.handleStart)
	c.Register("help", c.handleHelp)

	return c
}

// HandleCommand processes incoming commands
func (c *Commands) HandleCommand(update tgbotapi.Update) error {
	if update.Message == nil || !update.Message.IsCommand() {
		return nil
	}

	msg := update.Message
	command := msg.Command()
	args := strings.Fields(msg.CommandArguments())

	ctx := CommandContext{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		UserID:    msg.From.ID,
		Username:  msg.From.UserName,
		Command:   command,
		Args:      args,
		RawArgs:   strings.TrimSpace(msg.CommandArguments()),
		ReplyTo:   msg.ReplyToMessage,
	}

	c.logger.Debug().
		Int64("chat_id", ctx.ChatID).
		Str("command", command).
		Strs("args", args).
		Msg("Command received")

	handler, exists := c.handlers[command]
	if !exists {
		return c.sendUnknownCommand(ctx)
	}

	return handler(ctx)
}

// Register registers a command handler
func (c *Commands) Register(command string, handler CommandFunc) {
	c.handlers[command] = handler
	c.logger.Info().Str("command", command).Msg("Command registered")
}

// SetCommands sets the bot's command list in Telegram
func (c *Commands) SetCommands(commands []tgbotapi.BotCommand) error {
	cfg := tgbotapi.NewSetMyCommands(commands...)
	_, err := c.bot.api.Request(cfg)
	if err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}

	c.logger.Info().Int("count", len(commands)).Msg("Bot commands updated")
	return nil
}

// handleMeme sends a meme. With a keyword it looks for a tag match, without
// one it picks at random from the whole library.
func (c *Commands) handleMeme(ctx CommandContext) error {
	var rec *store.Record

	if ctx.RawArgs == "" {
		records := c.store.List()
		if len(records) == 0 {
			return c.SendResponse(ctx, "The meme library is empty.")
		}
		c.rngMu.Lock()
		pick := records[c.rng.Intn(len(records))]
		c.rngMu.Unlock()
		rec = &pick
	} else {
		var ok bool
		rec, ok = c.engine.MatchExact(ctx.RawArgs)
		if !ok {
			rec, ok = c.engine.MatchFuzzy(ctx.RawArgs)
		}
		if !ok {
			return c.SendResponse(ctx, fmt.Sprintf("No meme matches %q.", ctx.RawArgs))
		}
	}

	if err := c.bot.SendPhotoFile(ctx.ChatID, c.store.PayloadPath(rec.ID), ""); err != nil {
		if c.metrics != nil {
			c.metrics.TelegramErrorsTotal.Inc()
		}
		return err
	}

	if c.metrics != nil {
		c.metrics.MemesSentTotal.WithLabelValues("exact").Inc()
		c.metrics.TelegramMessagesSentTotal.Inc()
	}

	return nil
}

// handleSave stores the photo the command replies to, tagged with the
// command arguments
func (c *Commands) handleSave(ctx CommandContext) error {
	if ctx.RawArgs == "" {
		return c.SendResponse(ctx, "Usage: reply to a photo with /save <label>:<when to use it>")
	}

	if ctx.ReplyTo == nil {
		return c.SendResponse(ctx, "Reply to a photo message with /save to store it.")
	}

	fileID, ok := PhotoFileID(ctx.ReplyTo)
	if !ok {
		return c.SendResponse(ctx, "That message has no photo to save.")
	}

	payload, err := c.media.Download(fileID)
	if err != nil {
		c.logger.Warn().Err(err).Str("file_id", fileID).Msg("Failed to download photo for /save")
		return c.SendResponse(ctx, "Could not download that photo.")
	}

	rec, err := c.store.Create(store.CreateParams{
		Payload: payload,
		TagText: ctx.RawArgs,
		Source:  store.SourceManual,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return c.SendResponse(ctx, "That meme is already in the library.")
		}
		c.logger.Error().Err(err).Msg("Failed to store meme from /save")
		return c.SendResponse(ctx, "Could not save that meme.")
	}

	if c.metrics != nil {
		c.metrics.RecordsSavedTotal.WithLabelValues(string(store.SourceManual)).Inc()
	}

	return c.SendResponse(ctx, fmt.Sprintf("Saved as %s.", rec.ID))
}

// handleStart sends the welcome message
func (c *Commands) handleStart(ctx CommandContext) error {
	return c.SendResponse(ctx, "Hi! I chat along and collect memes. Send photos to grow my library, or try /meme.")
}

// handleHelp sends usage information
func (c *Commands) handleHelp(ctx CommandContext) error {
	help := strings.Join([]string{
		"/meme - send a random meme",
		"/meme <keyword> - send a meme matching the keyword",
		"/save <label>:<usage> - save the photo you replied to",
		"/help - show this message",
	}, "\n")
	return c.SendResponse(ctx, help)
}

// sendUnknownCommand sends an unknown command response
func (c *Commands) sendUnknownCommand(ctx CommandContext) error {
	text := fmt.Sprintf("Unknown command: /%s", ctx.Command)
	return c.bot.SendMessageWithReply(ctx.ChatID, text, ctx.MessageID)
}

// SendResponse sends a response to a command
func (c *Commands) SendResponse(ctx CommandContext, text string) error {
	return c.bot.SendMessageWithReply(ctx.ChatID, text, ctx.MessageID)
}

// GetRegisteredCommands returns all registered commands
func (c *Commands) GetRegisteredCommands() []string {
	commands := make([]string, 0, len(c.handlers))
	for cmd := range c.handlers {
		commands = append(commands, cmd)
	}
	return commands
}
