package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/scan-bot/internal/models"
)

// ErrFileTooLarge is returned when an upload exceeds the configured size cap
var ErrFileTooLarge = errors.New("file too large")

// fileFetcher downloads a Telegram file by id
type fileFetcher interface {
	Fetch(ctx context.Context, fileID string, maxBytes int64) ([]byte, error)
}

// toEvent converts an update into an inbound event. A nil event means the update is ignored.
func toEvent(ctx context.Context, update tgbotapi.Update, fetcher fileFetcher, maxBytes int64) (models.Event, error) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
			return nil, nil
		}
		return models.ButtonPress{
			From: models.Origin{
				UserID:  cb.From.ID,
				ChatID:  cb.Message.Chat.ID,
				Private: cb.Message.Chat.IsPrivate(),
			},
			Payload: cb.Data,
		}, nil
	}

	message := update.Message
	if message == nil || message.From == nil || message.Chat == nil {
		return nil, nil
	}
	origin := models.Origin{
		UserID:  message.From.ID,
		ChatID:  message.Chat.ID,
		Private: message.Chat.IsPrivate(),
	}

	switch {
	case message.Document != nil:
		doc := message.Document
		if maxBytes > 0 && int64(doc.FileSize) > maxBytes {
			return nil, ErrFileTooLarge
		}
		data, err := fetcher.Fetch(ctx, doc.FileID, maxBytes)
		if err != nil {
			return nil, err
		}
		filename := doc.FileName
		if filename == "" {
			filename = "document"
		}
		return models.FileUpload{
			From:     origin,
			Data:     data,
			Filename: filename,
			MimeType: doc.MimeType,
			Caption:  message.Caption,
		}, nil

	case len(message.Photo) > 0:
		// Telegram lists sizes smallest first
		photo := message.Photo[len(message.Photo)-1]
		if maxBytes > 0 && int64(photo.FileSize) > maxBytes {
			return nil, ErrFileTooLarge
		}
		data, err := fetcher.Fetch(ctx, photo.FileID, maxBytes)
		if err != nil {
			return nil, err
		}
		return models.FileUpload{
			From:     origin,
			Data:     data,
			Filename: fmt.Sprintf("photo_%s.jpg", photo.FileUniqueID),
			MimeType: "image/jpeg",
			Caption:  message.Caption,
		}, nil

	case message.Text != "":
		return models.TextMessage{From: origin, Text: message.Text}, nil
	}

	return nil, nil
}

// apiFetcher resolves file ids through the Bot API and downloads them over HTTP
type apiFetcher struct {
	api    *tgbotapi.BotAPI
	client *http.Client
}

func (f *apiFetcher) Fetch(ctx context.Context, fileID string, maxBytes int64) ([]byte, error) {
	url, err := f.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file: %w", err)
	}
	return download(ctx, f.client, url, maxBytes)
}

func download(ctx context.Context, client *http.Client, url string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file: status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, ErrFileTooLarge
	}
	return data, nil
}
