package bot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/scan-bot/internal/models"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	files map[string][]byte
	asked []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, fileID string, maxBytes int64) ([]byte, error) {
	f.asked = append(f.asked, fileID)
	data, ok := f.files[fileID]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func privateChat() *tgbotapi.Chat {
	return &tgbotapi.Chat{ID: 7, Type: "private"}
}

func TestToEventText(t *testing.T) {
	update := tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 3,
		From:      &tgbotapi.User{ID: 7},
		Chat:      privateChat(),
		Text:      "scan: leads",
	}}

	event, err := toEvent(context.Background(), update, &fakeFetcher{}, 0)
	require.NoError(t, err)
	assert.Equal(t, models.TextMessage{
		From: models.Origin{UserID: 7, ChatID: 7, Private: true},
		Text: "scan: leads",
	}, event)
}

func TestToEventGroupText(t *testing.T) {
	update := tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 7},
		Chat: &tgbotapi.Chat{ID: -100200, Type: "supergroup"},
		Text: "sk_live_0123456789abcdef",
	}}

	event, err := toEvent(context.Background(), update, &fakeFetcher{}, 0)
	require.NoError(t, err)
	assert.False(t, event.Origin().Private)
	assert.Equal(t, int64(-100200), event.Origin().ChatID)
}

func TestToEventDocument(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string][]byte{"doc-1": []byte("%PDF")}}
	update := tgbotapi.Update{Message: &tgbotapi.Message{
		From:    &tgbotapi.User{ID: 7},
		Chat:    privateChat(),
		Caption: "invoices",
		Document: &tgbotapi.Document{
			FileID:   "doc-1",
			FileName: "march.pdf",
			MimeType: "application/pdf",
			FileSize: 4,
		},
	}}

	event, err := toEvent(context.Background(), update, fetcher, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, models.FileUpload{
		From:     models.Origin{UserID: 7, ChatID: 7, Private: true},
		Data:     []byte("%PDF"),
		Filename: "march.pdf",
		MimeType: "application/pdf",
		Caption:  "invoices",
	}, event)
}

func TestToEventDocumentTooLarge(t *testing.T) {
	fetcher := &fakeFetcher{}
	update := tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 7},
		Chat:     privateChat(),
		Document: &tgbotapi.Document{FileID: "big", FileSize: 50 << 20},
	}}

	_, err := toEvent(context.Background(), update, fetcher, 20<<20)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Empty(t, fetcher.asked, "oversized files are not downloaded")
}

func TestToEventPhotoUsesLargestSize(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string][]byte{"large": {0xff, 0xd8}}}
	update := tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 7},
		Chat: privateChat(),
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", FileUniqueID: "s", Width: 90},
			{FileID: "large", FileUniqueID: "abc", Width: 1280},
		},
	}}

	event, err := toEvent(context.Background(), update, fetcher, 0)
	require.NoError(t, err)
	upload, ok := event.(models.FileUpload)
	require.True(t, ok)
	assert.Equal(t, "photo_abc.jpg", upload.Filename)
	assert.Equal(t, "image/jpeg", upload.MimeType)
	assert.Equal(t, []string{"large"}, fetcher.asked)
}

func TestToEventCallback(t *testing.T) {
	update := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 7},
		Message: &tgbotapi.Message{MessageID: 10, Chat: privateChat()},
		Data:    "filemode:yes",
	}}

	event, err := toEvent(context.Background(), update, &fakeFetcher{}, 0)
	require.NoError(t, err)
	assert.Equal(t, models.ButtonPress{
		From:    models.Origin{UserID: 7, ChatID: 7, Private: true},
		Payload: "filemode:yes",
	}, event)
}

func TestToEventIgnored(t *testing.T) {
	for _, update := range []tgbotapi.Update{
		{},
		{Message: &tgbotapi.Message{Chat: privateChat(), Text: "no sender"}},
		{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 7}, Chat: privateChat()}},
		{CallbackQuery: &tgbotapi.CallbackQuery{From: &tgbotapi.User{ID: 7}}},
	} {
		event, err := toEvent(context.Background(), update, &fakeFetcher{}, 0)
		assert.NoError(t, err)
		assert.Nil(t, event)
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	data, err := download(context.Background(), srv.Client(), srv.URL+"/file", 100)
	require.NoError(t, err)
	assert.Len(t, data, 100)

	_, err = download(context.Background(), srv.Client(), srv.URL+"/file", 99)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = download(context.Background(), srv.Client(), srv.URL+"/missing", 0)
	assert.Error(t, err)
}

func TestBuildMessage(t *testing.T) {
	msg := buildMessage(7, 3, models.Reply{
		Text:     "*Saved*",
		Markdown: true,
		Keyboard: [][]models.Button{{{Text: "Yes", Data: "filemode:yes"}, {Text: "No", Data: "filemode:no"}}},
	})

	assert.Equal(t, int64(7), msg.ChatID)
	assert.Equal(t, 3, msg.ReplyToMessageID)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, msg.ParseMode)

	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)
	require.Len(t, markup.InlineKeyboard[0], 2)
	require.NotNil(t, markup.InlineKeyboard[0][1].CallbackData)
	assert.Equal(t, "filemode:no", *markup.InlineKeyboard[0][1].CallbackData)

	plain := buildMessage(7, 0, models.Reply{Text: "hi"})
	assert.Empty(t, plain.ParseMode)
	assert.Nil(t, plain.ReplyMarkup)
}

func TestReplyTarget(t *testing.T) {
	chatID, replyTo := replyTarget(tgbotapi.Update{Message: &tgbotapi.Message{MessageID: 5, Chat: privateChat()}})
	assert.Equal(t, int64(7), chatID)
	assert.Equal(t, 5, replyTo)

	chatID, replyTo = replyTarget(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{Message: &tgbotapi.Message{MessageID: 5, Chat: privateChat()}}})
	assert.Equal(t, int64(7), chatID)
	assert.Zero(t, replyTo)
}

// fakeTelegram answers Bot API calls and counts sent messages
func fakeTelegram(t *testing.T, sent *atomic.Int32) *tgbotapi.BotAPI {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Scan","username":"scan_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			sent.Add(1)
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":10,"date":0,"chat":{"id":7,"type":"private"}}}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		}
	}))
	t.Cleanup(srv.Close)

	api, err := tgbotapi.NewBotAPIWithClient("123:abc", srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)
	return api
}

// gatedHandler blocks until released and records whether its context was cancelled
type gatedHandler struct {
	started chan struct{}
	release chan struct{}
	ctxErr  error
}

func (h *gatedHandler) Handle(ctx context.Context, event models.Event) models.Reply {
	close(h.started)
	<-h.release
	h.ctxErr = ctx.Err()
	return models.Reply{Text: "✅ Saved"}
}

func TestInFlightUpdateSurvivesShutdown(t *testing.T) {
	var sent atomic.Int32
	handler := &gatedHandler{started: make(chan struct{}), release: make(chan struct{})}
	b := &Bot{
		api:     fakeTelegram(t, &sent),
		handler: handler,
		fetcher: &fakeFetcher{},
		logger:  zap.NewNop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.dispatch(ctx, tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 3,
		From:      &tgbotapi.User{ID: 7},
		Chat:      privateChat(),
		Text:      "scan: notes\nbody",
	}})

	<-handler.started
	cancel()
	close(handler.release)
	b.wg.Wait()

	assert.NoError(t, handler.ctxErr, "shutdown must not cancel a handler mid-request")
	assert.Equal(t, int32(1), sent.Load(), "the reply is still delivered")
}
