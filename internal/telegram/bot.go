package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/wenli/memekeeper/internal/config"
	"github.com/wenli/memekeeper/internal/logger"
)

// Bot represents a Telegram bot instance
type Bot struct {
	api    *tgbotapi.BotAPI
	config *config.TelegramConfig
	logger zerolog.Logger

	// Handlers
	messageHandler MessageHandler
	commandHandler CommandHandler
	mediaHandler   MediaHandler

	// State
	running bool
	updates tgbotapi.UpdatesChannel
}

// MessageHandler handles incoming text messages
type MessageHandler interface {
	HandleMessage(update tgbotapi.Update) error
}

// CommandHandler handles bot commands
type CommandHandler interface {
	HandleCommand(update tgbotapi.Update) error
}

// MediaHandler handles photo messages
type MediaHandler interface {
	HandleMedia(update tgbotapi.Update) error
}

// New creates a new Telegram bot instance
func New(cfg *config.TelegramConfig, log *logger.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram config is required")
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	// Create bot API instance
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot := &Bot{
		api:    api,
		config: cfg,
		logger: log.GetZerolog().With().Str("component", "telegram").Logger(),
	}

	bot.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return bot, nil
}

// Start starts the bot and begins processing updates
func (b *Bot) Start() error {
	if b.running {
		return fmt.Errorf("bot is already running")
	}

	b.logger.Info().Msg("Starting Telegram bot")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.updates = updates
	b.running = true

	go b.processUpdates()

	b.logger.Info().Msg("Telegram bot started")

	return nil
}

// Stop stops the bot
func (b *Bot) Stop() error {
	if !b.running {
		return fmt.Errorf("bot is not running")
	}

	b.logger.Info().Msg("Stopping Telegram bot")

	b.running = false
	b.api.StopReceivingUpdates()

	b.logger.Info().Msg("Telegram bot stopped")

	return nil
}

// processUpdates processes incoming updates
func (b *Bot) processUpdates() {
	for update := range b.updates {
		if !b.running {
			break
		}

		if err := b.handleUpdate(update); err != nil {
			b.logger.Error().
				Err(err).
				Int("update_id", update.UpdateID).
				Msg("Failed to handle update")
		}
	}
}

// handleUpdate routes an update to the appropriate handler
func (b *Bot) handleUpdate(update tgbotapi.Update) error {
	if update.Message != nil {
		if update.Message.IsCommand() && b.commandHandler != nil {
			return b.commandHandler.HandleCommand(update)
		}

		if b.hasPhoto(update.Message) && b.mediaHandler != nil {
			return b.mediaHandler.HandleMedia(update)
		}

		if b.messageHandler != nil {
			return b.messageHandler.HandleMessage(update)
		}
	}

	return nil
}

// hasPhoto checks if a message carries an image payload
func (b *Bot) hasPhoto(msg *tgbotapi.Message) bool {
	if len(msg.Photo) > 0 {
		return true
	}
	return msg.Document != nil && isImageMIME(msg.Document.MimeType)
}

func isImageMIME(mime string) bool {
	switch mime {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	}
	return false
}

// SendMessage sends a text message
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)

	_, err := b.api.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	b.logger.Debug().
		Int64("chat_id", chatID).
		Msg("Message sent")

	return nil
}

// SendMessageWithReply sends a text message as a reply
func (b *Bot) SendMessageWithReply(chatID int64, text string, replyToMessageID int) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyToMessageID

	_, err := b.api.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	b.logger.Debug().
		Int64("chat_id", chatID).
		Int("reply_to", replyToMessageID).
		Msg("Reply sent")

	return nil
}

// SendPhotoFile sends a stored image file
func (b *Bot) SendPhotoFile(chatID int64, photoPath string, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(photoPath))
	photo.Caption = caption

	_, err := b.api.Send(photo)
	if err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}

	b.logger.Debug().
		Int64("chat_id", chatID).
		Str("path", photoPath).
		Msg("Photo sent")

	return nil
}

// SendTyping sends a typing chat action
func (b *Bot) SendTyping(chatID int64) error {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := b.api.Request(action); err != nil {
		return fmt.Errorf("failed to send typing action: %w", err)
	}
	return nil
}

// GetBotInfo returns bot information
func (b *Bot) GetBotInfo() map[string]interface{} {
	return map[string]interface{}{
		"username":  b.api.Self.UserName,
		"id":        b.api.Self.ID,
		"firstName": b.api.Self.FirstName,
		"running":   b.running,
	}
}

// SetMessageHandler sets the message handler
func (b *Bot) SetMessageHandler(handler MessageHandler) {
	b.messageHandler = handler
}

// SetCommandHandler sets the command handler
func (b *Bot) SetCommandHandler(handler CommandHandler) {
	b.commandHandler = handler
}

// SetMediaHandler sets the media handler
func (b *Bot) SetMediaHandler(handler MediaHandler) {
	b.mediaHandler = handler
}

// GetAPI returns the underlying bot API
func (b *Bot) GetAPI() *tgbotapi.BotAPI {
	return b.api
}

// IsRunning returns whether the bot is running
func (b *Bot) IsRunning() bool {
	return b.running
}
