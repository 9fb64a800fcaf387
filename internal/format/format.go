package format

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xaenox/scan-bot/internal/models"
)

// MaxItems is how many items EndpointData renders before summarising
const MaxItems = 10

var markdownEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
	"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

// Escape escapes special characters for Telegram MarkdownV2
func Escape(text string) string {
	return markdownEscaper.Replace(text)
}

// Failure renders a failed collaborator call
func Failure(action, message string) string {
	if message == "" {
		message = "unknown error"
	}
	return fmt.Sprintf("⚠️ *%s failed*\n%s", Escape(action), Escape(message))
}

func ScanResult(res models.Result[*models.ScanResult], prompt string) string {
	if !res.Success || res.Data == nil {
		return Failure("Scan", res.Error)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ *Saved* to `%s`\n", Escape(res.Data.Endpoint))
	if prompt != "" {
		fmt.Fprintf(&b, "*Prompt:* %s\n", Escape(prompt))
	}
	if fields := renderItem(res.Data.Item); fields != "" {
		b.WriteString("\n")
		b.WriteString(fields)
	}
	return strings.TrimRight(b.String(), "\n")
}

func EndpointList(res models.Result[[]models.EndpointRef]) string {
	if !res.Success {
		return Failure("Listing endpoints", res.Error)
	}
	if len(res.Data) == 0 {
		return "You don't have any endpoints yet\\. Send `scan: <prompt>` followed by some text to create one\\."
	}

	var b strings.Builder
	b.WriteString("*Your endpoints:*\n")
	for _, ep := range res.Data {
		if ep.Count > 0 {
			fmt.Fprintf(&b, "• `%s` \\(%d\\)\n", Escape(ep.Path), ep.Count)
		} else {
			fmt.Fprintf(&b, "• `%s`\n", Escape(ep.Path))
		}
	}
	b.WriteString("\nUse `get: <path>` to read one\\.")
	return b.String()
}

func EndpointData(res models.Result[*models.EndpointData], path string) string {
	if !res.Success || res.Data == nil {
		return Failure("Fetching "+path, res.Error)
	}
	if len(res.Data.Items) == 0 {
		return fmt.Sprintf("`%s` is empty\\.", Escape(path))
	}

	// the service may return one page of a larger collection
	total := max(res.Data.TotalCount, len(res.Data.Items))

	var b strings.Builder
	fmt.Fprintf(&b, "*%s* \\- %d item", Escape(path), total)
	if total != 1 {
		b.WriteString("s")
	}
	b.WriteString("\n")

	for i, item := range res.Data.Items {
		if i == MaxItems {
			fmt.Fprintf(&b, "\n_…and %d more_", total-MaxItems)
			break
		}
		fmt.Fprintf(&b, "\n*%d\\.*\n%s", i+1, renderItem(item))
	}
	return strings.TrimRight(b.String(), "\n")
}

func UsageStats(res models.Result[*models.UsageStats]) string {
	if !res.Success || res.Data == nil {
		return Failure("Fetching usage", res.Error)
	}

	s := res.Data
	text := fmt.Sprintf("*Plan:* %s\n*Used:* %d", Escape(s.Tier), s.Used)
	if s.Limit > 0 {
		text += fmt.Sprintf(" / %d \\(%d%%\\)", s.Limit, s.Used*100/s.Limit)
	}
	return text
}

func renderItem(item models.Item) string {
	if len(item) == 0 {
		return ""
	}

	keys := make([]string, 0, len(item))
	for k := range item {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "*%s:* %s\n", Escape(k), Escape(renderValue(item[k])))
	}
	return b.String()
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "—"
	case string:
		return val
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
