// Package summarize produces the formal Hebrew case summary archived next
// to each conversation transcript.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo050/Office-Automation-Law-bot/provider"
)

const systemPrompt = "אתה עורך-סיכום במשרד עורכי-דין. הפק תקציר פורמלי הכולל:\n" +
	"• פרטי זיהוי ומידע ללקוח.\n" +
	"• סוגי תיקים / נזקים רלוונטיים.\n" +
	"• מסמכים שהתקבלו או חסרים.\n" +
	"• פעולות המשך ותזכורות.\n" +
	"השתמש בעברית רהוטה ותמציתית."

// Summarizer turns a raw transcript into a case summary. It runs on its own
// provider instance so the summary model and limits stay independent of the
// dialogue model.
type Summarizer struct {
	provider provider.Provider
}

// New builds a summarizer over the given provider.
func New(p provider.Provider) *Summarizer {
	return &Summarizer{provider: p}
}

// Summarize returns the Hebrew summary for transcript. An empty transcript
// yields an empty summary without a model call.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", nil
	}
	resp, err := s.provider.Chat(ctx, &provider.Request{
		Messages: []provider.Message{
			provider.SystemMessage(systemPrompt),
			provider.UserMessage("שיחה מלאה:\n\n" + transcript + "\n\n---\nסכם בהתאם להנחיות."),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize transcript: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
