package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/scan-bot/internal/backend"
	"github.com/xaenox/scan-bot/internal/models"
	"github.com/xaenox/scan-bot/internal/pending"
	"go.uber.org/zap"
)

// Backend is the scan/query service
type Backend interface {
	ScanText(ctx context.Context, apiKey, prompt, text string) (*models.ScanResult, error)
	ScanFile(ctx context.Context, apiKey, prompt string, data []byte, filename, mimeType string, opts models.ScanOptions) (*models.ScanResult, error)
	ListEndpoints(ctx context.Context, apiKey string) ([]models.EndpointRef, error)
	GetEndpointData(ctx context.Context, apiKey, path string) (*models.EndpointData, error)
	GetUsageStats(ctx context.Context, apiKey string) (*models.UsageStats, error)
	ValidateCredential(ctx context.Context, apiKey string) (bool, error)
}

// SessionStore is satisfied by *session.Store
type SessionStore interface {
	Get(ctx context.Context, userID int64) *models.UserSession
	SetCredential(ctx context.Context, userID int64, apiKey string, now time.Time) (*models.UserSession, error)
	SetLastPrompt(ctx context.Context, userID int64, prompt string) (*models.UserSession, error)
}

type Config struct {
	CredentialPrefix    string
	CredentialMinLength int
	// DecisionMimeTypes lists MIME types that need a processing-mode decision.
	// An entry ending in "/" matches the whole family, e.g. "image/".
	DecisionMimeTypes []string
}

// Orchestrator turns one inbound event into exactly one reply. Events for the same
// user are handled one at a time; different users proceed in parallel.
type Orchestrator struct {
	backend  Backend
	sessions SessionStore
	pending  pending.Store
	cfg      Config
	logger   *zap.Logger
	locks    *userLocks
	now      func() time.Time
}

func New(b Backend, sessions SessionStore, p pending.Store, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CredentialPrefix == "" {
		cfg.CredentialPrefix = "sk_"
	}
	if cfg.CredentialMinLength <= 0 {
		cfg.CredentialMinLength = 20
	}

	return &Orchestrator{
		backend:  b,
		sessions: sessions,
		pending:  p,
		cfg:      cfg,
		logger:   logger,
		locks:    newUserLocks(),
		now:      time.Now,
	}
}

// Handle never fails: every error path resolves to a reply
func (o *Orchestrator) Handle(ctx context.Context, event models.Event) (reply models.Reply) {
	origin := event.Origin()
	unlock := o.locks.lock(origin.UserID)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Recovered from panic while handling event",
				zap.Any("panic", r),
				zap.Int64("user_id", origin.UserID))
			reply = plain(msgInternalError)
		}
	}()

	switch e := event.(type) {
	case models.TextMessage:
		return o.handleText(ctx, e)
	case models.FileUpload:
		return o.handleFile(ctx, e)
	case models.ButtonPress:
		return o.handleButton(ctx, e)
	default:
		o.logger.Warn("Unsupported event type",
			zap.String("type", fmt.Sprintf("%T", event)),
			zap.Int64("user_id", origin.UserID))
		return plain(msgUnknownAction)
	}
}

func (o *Orchestrator) looksLikeCredential(text string) bool {
	return strings.HasPrefix(text, o.cfg.CredentialPrefix) &&
		len(text) >= o.cfg.CredentialMinLength &&
		!strings.ContainsAny(text, " \t\r\n")
}

func (o *Orchestrator) needsDecision(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	for _, candidate := range o.cfg.DecisionMimeTypes {
		candidate = strings.ToLower(candidate)
		if strings.HasSuffix(candidate, "/") {
			if strings.HasPrefix(mimeType, candidate) {
				return true
			}
		} else if mimeType == candidate {
			return true
		}
	}
	return false
}

// call runs one collaborator request and folds any error into a failed result
func call[T any](logger *zap.Logger, userID int64, action string, fn func() (T, error)) models.Result[T] {
	data, err := fn()
	if err == nil {
		return models.Succeeded(data)
	}

	logger.Warn("Scan service call failed",
		zap.Error(err),
		zap.String("action", action),
		zap.Int64("user_id", userID))

	if errors.Is(err, backend.ErrUnauthorized) {
		return models.Result[T]{Error: msgKeyRejectedByService}
	}
	return models.Failed[T](err)
}

func plain(text string) models.Reply {
	return models.Reply{Text: text}
}

func markdown(text string) models.Reply {
	return models.Reply{Text: text, Markdown: true}
}
