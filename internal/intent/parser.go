package intent

import (
	"strings"
	"unicode/utf8"
)

// Prefix constants, checked in this order
const (
	PrefixScan = "scan:"
	PrefixText = "text:"
	PrefixGet  = "get:"
	PrefixFile = "file:"

	CommandList = "list"
)

// MaxCaptionLength is the exclusive upper bound for a caption used as a prompt
const MaxCaptionLength = 100

// Kind is the tag of a parsed message
type Kind int

const (
	KindUnknown Kind = iota
	KindList
	KindScan
	KindText
	KindGet
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindScan:
		return "scan"
	case KindText:
		return "text"
	case KindGet:
		return "get"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// ParsedMessage is the classified intent of a text message.
// Prompt is set for KindScan, Content for KindScan (optional) and KindText,
// Path for KindGet and KindFile.
type ParsedMessage struct {
	Kind    Kind
	Prompt  string
	Content *string
	Path    string
}

// Parse classifies raw text. It is total: every input yields exactly one kind.
//   - list, /list             → KindList
//   - scan: <prompt>\n<body>  → KindScan, body optional
//   - text: <content>         → KindText
//   - get: <path>             → KindGet, path normalized to a leading slash
//   - file: <path>            → KindFile, same normalization
func Parse(text string) ParsedMessage {
	trimmed := strings.TrimSpace(text)

	if isListCommand(trimmed) {
		return ParsedMessage{Kind: KindList}
	}

	if rest, ok := cutPrefixFold(trimmed, PrefixScan); ok {
		prompt, body, _ := strings.Cut(rest, "\n")
		msg := ParsedMessage{Kind: KindScan, Prompt: strings.TrimSpace(prompt)}
		if content := strings.TrimSpace(body); content != "" {
			msg.Content = &content
		}
		return msg
	}

	if rest, ok := cutPrefixFold(trimmed, PrefixText); ok {
		content := strings.TrimSpace(rest)
		return ParsedMessage{Kind: KindText, Content: &content}
	}

	if rest, ok := cutPrefixFold(trimmed, PrefixGet); ok {
		return ParsedMessage{Kind: KindGet, Path: normalizePath(rest)}
	}

	if rest, ok := cutPrefixFold(trimmed, PrefixFile); ok {
		return ParsedMessage{Kind: KindFile, Path: normalizePath(rest)}
	}

	return ParsedMessage{Kind: KindUnknown}
}

// IsFileCaption reports whether an upload caption should be used as a scan prompt
// rather than being read as a command.
func IsFileCaption(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.HasPrefix(trimmed, "/") || isListCommand(trimmed) {
		return false
	}
	for _, prefix := range []string{PrefixScan, PrefixText, PrefixGet, PrefixFile} {
		if _, ok := cutPrefixFold(trimmed, prefix); ok {
			return false
		}
	}
	return utf8.RuneCountInString(trimmed) < MaxCaptionLength
}

func isListCommand(s string) bool {
	return strings.EqualFold(strings.TrimPrefix(s, "/"), CommandList)
}

// cutPrefixFold is strings.CutPrefix with ASCII case folding on the prefix
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}

func normalizePath(raw string) string {
	path := strings.TrimSpace(raw)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
