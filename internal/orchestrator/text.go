package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/scan-bot/internal/format"
	"github.com/xaenox/scan-bot/internal/intent"
	"github.com/xaenox/scan-bot/internal/models"
	"go.uber.org/zap"
)

func (o *Orchestrator) handleText(ctx context.Context, msg models.TextMessage) models.Reply {
	text := strings.TrimSpace(msg.Text)
	userID := msg.From.UserID

	// The credential check runs before anything reads the session
	if o.looksLikeCredential(text) {
		return o.handleCredential(ctx, msg.From, text)
	}

	text = stripBotMention(text)
	if reply, ok := o.handleCommand(ctx, userID, text); ok {
		return reply
	}

	parsed := intent.Parse(text)
	if parsed.Kind == intent.KindUnknown {
		return plain(msgUnknownInput)
	}

	sess := o.sessions.Get(ctx, userID)
	if !sess.HasCredential() {
		return plain(msgMissingCredential)
	}

	o.logger.Debug("Handling intent",
		zap.String("intent", parsed.Kind.String()),
		zap.Int64("user_id", userID))

	switch parsed.Kind {
	case intent.KindList:
		res := call(o.logger, userID, "list", func() ([]models.EndpointRef, error) {
			return o.backend.ListEndpoints(ctx, sess.APIKey)
		})
		return markdown(format.EndpointList(res))

	case intent.KindScan:
		return o.handleScan(ctx, sess, parsed)

	case intent.KindText:
		content := intent.Sanitize(*parsed.Content)
		if content == "" {
			return plain(msgTextUsage)
		}
		if sess.LastPrompt == "" {
			return plain(msgNoPrompt)
		}
		return o.scanText(ctx, sess, sess.LastPrompt, content)

	case intent.KindGet:
		path := intent.Sanitize(parsed.Path)
		res := call(o.logger, userID, "get", func() (*models.EndpointData, error) {
			return o.backend.GetEndpointData(ctx, sess.APIKey, path)
		})
		return markdown(format.EndpointData(res, path))

	case intent.KindFile:
		return plain(fmt.Sprintf(msgFilePathUnsupported, intent.Sanitize(parsed.Path)))
	}

	return plain(msgUnknownInput)
}

// handleScan follows sanitize(prompt) → persist → sanitize(content) → scan
func (o *Orchestrator) handleScan(ctx context.Context, sess *models.UserSession, parsed intent.ParsedMessage) models.Reply {
	prompt := intent.Sanitize(parsed.Prompt)
	if prompt == "" {
		return plain(msgScanUsage)
	}
	if o.looksLikeCredential(prompt) {
		o.logger.Warn("Refused API key used as a prompt", zap.Int64("user_id", sess.UserID))
		return plain(msgCredentialAsPrompt)
	}

	if _, err := o.sessions.SetLastPrompt(ctx, sess.UserID, prompt); err != nil {
		o.logger.Error("Failed to save prompt",
			zap.Error(err),
			zap.Int64("user_id", sess.UserID))
		if parsed.Content == nil {
			return plain(msgPromptSaveFailed)
		}
	}

	if parsed.Content == nil {
		return plain(fmt.Sprintf(msgPromptSet, prompt))
	}

	content := intent.Sanitize(*parsed.Content)
	if content == "" {
		return plain(fmt.Sprintf(msgPromptSet, prompt))
	}
	return o.scanText(ctx, sess, prompt, content)
}

func (o *Orchestrator) scanText(ctx context.Context, sess *models.UserSession, prompt, content string) models.Reply {
	res := call(o.logger, sess.UserID, "scan_text", func() (*models.ScanResult, error) {
		return o.backend.ScanText(ctx, sess.APIKey, prompt, content)
	})
	return markdown(format.ScanResult(res, prompt))
}

func (o *Orchestrator) handleCredential(ctx context.Context, from models.Origin, apiKey string) models.Reply {
	if !from.Private {
		o.logger.Warn("Refused API key submitted outside a private chat",
			zap.Int64("user_id", from.UserID),
			zap.Int64("chat_id", from.ChatID))
		return plain(msgCredentialGroup)
	}

	valid := call(o.logger, from.UserID, "validate_credential", func() (bool, error) {
		return o.backend.ValidateCredential(ctx, apiKey)
	})
	if !valid.Success {
		return markdown(format.Failure("Validating your API key", valid.Error))
	}
	if !valid.Data {
		o.logger.Info("API key rejected", zap.Int64("user_id", from.UserID))
		return plain(msgCredentialRejected)
	}

	if _, err := o.sessions.SetCredential(ctx, from.UserID, apiKey, o.now()); err != nil {
		o.logger.Error("Failed to save API key",
			zap.Error(err),
			zap.Int64("user_id", from.UserID))
		return plain(msgCredentialSaveFailed)
	}

	o.logger.Info("API key linked", zap.Int64("user_id", from.UserID))
	return plain(msgCredentialLinked)
}

// handleCommand answers slash commands that the intent grammar does not cover
func (o *Orchestrator) handleCommand(ctx context.Context, userID int64, text string) (models.Reply, bool) {
	if !strings.HasPrefix(text, "/") {
		return models.Reply{}, false
	}

	name, _, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")

	switch strings.ToLower(name) {
	case "start":
		if o.sessions.Get(ctx, userID).HasCredential() {
			return plain(msgWelcomeBack), true
		}
		return plain(msgWelcome), true

	case "help":
		return plain(msgHelp), true

	case "stats":
		sess := o.sessions.Get(ctx, userID)
		if !sess.HasCredential() {
			return plain(msgMissingCredential), true
		}
		res := call(o.logger, userID, "stats", func() (*models.UsageStats, error) {
			return o.backend.GetUsageStats(ctx, sess.APIKey)
		})
		return markdown(format.UsageStats(res)), true

	case "prompt":
		prompt := o.sessions.Get(ctx, userID).LastPrompt
		if prompt == "" {
			return plain(msgNoPrompt), true
		}
		return plain(fmt.Sprintf(msgCurrentPrompt, prompt)), true
	}

	return models.Reply{}, false
}

// stripBotMention turns "/list@scan_bot args" into "/list args"
func stripBotMention(text string) string {
	if !strings.HasPrefix(text, "/") {
		return text
	}
	command, rest, hasRest := strings.Cut(text, " ")
	command, _, _ = strings.Cut(command, "@")
	if !hasRest {
		return command
	}
	return command + " " + rest
}
