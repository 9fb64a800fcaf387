package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/xaenox/scan-bot/internal/models"
	"go.uber.org/zap"
)

// EventHandler produces the reply for one inbound event
type EventHandler interface {
	Handle(ctx context.Context, event models.Event) models.Reply
}

type Options struct {
	PollTimeout  int
	MaxFileBytes int64
	// DecisionPrefix marks callback payloads whose keyboard is removed once pressed
	DecisionPrefix string
}

type Bot struct {
	api     *tgbotapi.BotAPI
	handler EventHandler
	fetcher fileFetcher
	opts    Options
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func New(token string, handler EventHandler, opts Options, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 60
	}

	logger.Info("Authorized on Telegram", zap.String("username", api.Self.UserName))

	return &Bot{
		api:     api,
		handler: handler,
		fetcher: &apiFetcher{api: api, client: &http.Client{Timeout: 2 * time.Minute}},
		opts:    opts,
		logger:  logger,
	}, nil
}

// Start long-polls for updates until ctx is cancelled, handling each update in its own goroutine
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.opts.PollTimeout

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

// dispatch handles one update in its own goroutine. Handlers outlive cancellation of ctx
// so a shutdown lets in-flight scans finish and reply; Start waits for them.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	handlerCtx := context.WithoutCancel(ctx)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.handleUpdate(handlerCtx, update)
	}()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	logger := b.logger.With(zap.String("event_id", uuid.NewString()), zap.Int("update_id", update.UpdateID))

	if cb := update.CallbackQuery; cb != nil {
		b.acknowledge(logger, cb)
	}

	chatID, replyTo := replyTarget(update)
	if chatID != 0 && update.Message != nil {
		b.sendTyping(logger, chatID)
	}

	event, err := toEvent(ctx, update, b.fetcher, b.opts.MaxFileBytes)
	if errors.Is(err, ErrFileTooLarge) {
		b.sendMessage(logger, chatID, fmt.Sprintf("Sorry, that file is too large. The limit is %d MB.", b.opts.MaxFileBytes>>20))
		return
	}
	if err != nil {
		logger.Error("Failed to read update", zap.Error(err), zap.Int64("chat_id", chatID))
		b.sendErrorMessage(logger, chatID, "Sorry, I couldn't download your file. Please try again.")
		return
	}
	if event == nil {
		return
	}

	origin := event.Origin()
	logger.Debug("Handling event",
		zap.String("type", fmt.Sprintf("%T", event)),
		zap.Int64("user_id", origin.UserID),
		zap.Int64("chat_id", origin.ChatID))

	reply := b.handler.Handle(ctx, event)
	b.sendReply(logger, origin.ChatID, replyTo, reply)
}

func replyTarget(update tgbotapi.Update) (chatID int64, replyTo int) {
	switch {
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID, update.Message.MessageID
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		return update.CallbackQuery.Message.Chat.ID, 0
	}
	return 0, 0
}

// acknowledge answers the callback query and strips the decision keyboard so it cannot be pressed twice
func (b *Bot) acknowledge(logger *zap.Logger, cb *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		logger.Warn("Failed to answer callback query", zap.Error(err))
	}

	if b.opts.DecisionPrefix == "" || !strings.HasPrefix(cb.Data, b.opts.DecisionPrefix) {
		return
	}
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}

	edit := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := b.api.Request(edit); err != nil {
		logger.Warn("Failed to remove inline keyboard", zap.Error(err))
	}
}

func (b *Bot) sendTyping(logger *zap.Logger, chatID int64) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		logger.Debug("Failed to send typing indicator", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendReply(logger *zap.Logger, chatID int64, replyTo int, reply models.Reply) {
	msg := buildMessage(chatID, replyTo, reply)

	_, err := b.api.Send(msg)
	if err != nil && reply.Markdown {
		// fall back to plain text when Telegram rejects the entities
		logger.Warn("Failed to send markdown reply, retrying as plain text", zap.Error(err), zap.Int64("chat_id", chatID))
		msg.ParseMode = ""
		_, err = b.api.Send(msg)
	}
	if err != nil {
		logger.Error("Failed to send reply", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func buildMessage(chatID int64, replyTo int, reply models.Reply) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	msg.ReplyToMessageID = replyTo
	if reply.Markdown {
		msg.ParseMode = tgbotapi.ModeMarkdownV2
	}
	if len(reply.Keyboard) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(reply.Keyboard))
		for _, row := range reply.Keyboard {
			buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, button := range row {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.Data))
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	return msg
}

func (b *Bot) sendMessage(logger *zap.Logger, chatID int64, text string) {
	if chatID == 0 {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(logger *zap.Logger, chatID int64, text string) {
	b.sendMessage(logger, chatID, "⚠️ "+text)
}
