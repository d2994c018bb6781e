package telegram

import (
	"fmt"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	// MaxMediaSize bounds incoming photos
	MaxMediaSize = 5 * 1024 * 1024 // 5MB
)

// Media resolves and downloads Telegram file payloads
type Media struct {
	bot    *Bot
	logger zerolog.Logger
}

// NewMedia creates a new media handler
func NewMedia(bot *Bot) *Media {
	return &Media{
		bot:    bot,
		logger: bot.logger.With().Str("module", "media").Logger(),
	}
}

// PhotoFileID extracts the file ID of a message's image payload, preferring
// the largest photo size
func PhotoFileID(msg *tgbotapi.Message) (string, bool) {
	if len(msg.Photo) > 0 {
		return msg.Photo[len(msg.Photo)-1].FileID, true
	}
	if msg.Document != nil && isImageMIME(msg.Document.MimeType) {
		return msg.Document.FileID, true
	}
	return "", false
}

// FileURL resolves a Telegram file ID to a direct download URL
func (m *Media) FileURL(fileID string) (string, error) {
	file, err := m.bot.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("failed to get file info: %w", err)
	}

	if file.FileSize > MaxMediaSize {
		return "", fmt.Errorf("file size %d exceeds maximum %d", file.FileSize, MaxMediaSize)
	}

	return file.Link(m.bot.api.Token), nil
}

// Download fetches a Telegram file payload into memory
func (m *Media) Download(fileID string) ([]byte, error) {
	url, err := m.FileURL(fileID)
	if err != nil {
		return nil, err
	}

	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(payload) > MaxMediaSize {
		return nil, fmt.Errorf("file exceeds maximum size %d", MaxMediaSize)
	}

	m.logger.Debug().
		Str("file_id", fileID).
		Int("size", len(payload)).
		Msg("File downloaded")

	return payload, nil
}
