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

func (o *Orchestrator) handleFile(ctx context.Context, upload models.FileUpload) models.Reply {
	userID := upload.From.UserID

	sess := o.sessions.Get(ctx, userID)
	if !sess.HasCredential() {
		return plain(msgMissingCredential)
	}
	if len(upload.Data) == 0 {
		return plain(msgFileEmpty)
	}
	if o.captionHoldsCredential(upload.Caption) {
		o.logger.Warn("Refused API key used as a file caption", zap.Int64("user_id", userID))
		return plain(msgCredentialAsPrompt)
	}

	prompt := o.filePrompt(ctx, sess, upload.Caption)
	if prompt == "" {
		return plain(msgFileNoPrompt)
	}
	filename := intent.Sanitize(upload.Filename)

	if o.needsDecision(upload.MimeType) {
		file := models.PendingFile{
			Data:      upload.Data,
			Prompt:    prompt,
			Filename:  filename,
			MimeType:  upload.MimeType,
			CreatedAt: o.now(),
		}
		if err := o.pending.Put(ctx, userID, file); err != nil {
			o.logger.Error("Failed to store pending file",
				zap.Error(err),
				zap.Int64("user_id", userID),
				zap.String("filename", filename))
			return plain(msgFileHoldFailed)
		}

		o.logger.Info("File awaiting processing decision",
			zap.Int64("user_id", userID),
			zap.String("filename", filename),
			zap.String("mime_type", upload.MimeType),
			zap.Int("size", len(upload.Data)))

		return models.Reply{
			Text: fmt.Sprintf(msgFileDecision, filename, prompt),
			Keyboard: [][]models.Button{{
				{Text: msgDecisionYes, Data: DecisionYes},
				{Text: msgDecisionNo, Data: DecisionNo},
			}},
		}
	}

	return o.scanFile(ctx, sess, prompt, upload.Data, filename, upload.MimeType, models.ScanOptions{})
}

// captionHoldsCredential catches a key pasted as a caption, bare or after scan:
func (o *Orchestrator) captionHoldsCredential(caption string) bool {
	caption = strings.TrimSpace(caption)
	if o.looksLikeCredential(caption) {
		return true
	}
	parsed := intent.Parse(caption)
	return parsed.Kind == intent.KindScan && o.looksLikeCredential(parsed.Prompt)
}

// filePrompt picks the caption when it reads as a prompt, then a scan: caption's prompt,
// then the remembered prompt. A caption prompt becomes the new remembered prompt.
func (o *Orchestrator) filePrompt(ctx context.Context, sess *models.UserSession, caption string) string {
	caption = strings.TrimSpace(caption)

	prompt := ""
	if intent.IsFileCaption(caption) {
		prompt = intent.Sanitize(caption)
	} else if parsed := intent.Parse(caption); parsed.Kind == intent.KindScan {
		prompt = intent.Sanitize(parsed.Prompt)
	}

	if prompt == "" {
		return sess.LastPrompt
	}
	if prompt != sess.LastPrompt {
		if _, err := o.sessions.SetLastPrompt(ctx, sess.UserID, prompt); err != nil {
			o.logger.Warn("Failed to save caption as prompt",
				zap.Error(err),
				zap.Int64("user_id", sess.UserID))
		}
	}
	return prompt
}

func (o *Orchestrator) handleButton(ctx context.Context, press models.ButtonPress) models.Reply {
	userID := press.From.UserID

	var vision bool
	switch press.Payload {
	case DecisionYes:
		vision = true
	case DecisionNo:
		vision = false
	default:
		o.logger.Debug("Ignoring unknown button payload",
			zap.String("payload", press.Payload),
			zap.Int64("user_id", userID))
		return plain(msgUnknownAction)
	}

	// Check the credential before consuming the pending file so it survives a relink
	sess := o.sessions.Get(ctx, userID)
	if !sess.HasCredential() {
		return plain(msgMissingCredential)
	}

	file, found, err := o.pending.Take(ctx, userID)
	if err != nil {
		o.logger.Error("Failed to load pending file",
			zap.Error(err),
			zap.Int64("user_id", userID))
		return plain(msgFileExpired)
	}
	if !found {
		return plain(msgFileExpired)
	}

	return o.scanFile(ctx, sess, file.Prompt, file.Data, file.Filename, file.MimeType, models.ScanOptions{Vision: vision})
}

func (o *Orchestrator) scanFile(ctx context.Context, sess *models.UserSession, prompt string, data []byte, filename, mimeType string, opts models.ScanOptions) models.Reply {
	res := call(o.logger, sess.UserID, "scan_file", func() (*models.ScanResult, error) {
		return o.backend.ScanFile(ctx, sess.APIKey, prompt, data, filename, mimeType, opts)
	})
	return markdown(format.ScanResult(res, prompt))
}
