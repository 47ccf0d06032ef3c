package transcript

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/greeterhq/chat-server-go/internal/model"
)

const timeLayout = "Jan 2, 2006 3:04:05 PM"

// Rendered holds the final transcript in every delivery format.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

// Builder renders conversation transcripts for delivery.
type Builder struct {
	assistantName string
	companyName   string
}

func NewBuilder(assistantName, companyName string) *Builder {
	return &Builder{
		assistantName: assistantName,
		companyName:   companyName,
	}
}

// Build renders the transcript. Message content is included verbatim in
// the text form; the HTML form escapes it and converts line breaks.
func (b *Builder) Build(sessionID string, messages []model.Message, now time.Time) *Rendered {
	subject := fmt.Sprintf("%s - Chat Transcript", b.companyName)

	var text strings.Builder
	fmt.Fprintf(&text, "%s - Chat Transcript\n", b.companyName)
	if sessionID != "" {
		fmt.Fprintf(&text, "Session ID: %s\n", sessionID)
	}
	fmt.Fprintf(&text, "Date: %s\n", now.Format(timeLayout))
	fmt.Fprintf(&text, "Total Messages: %d\n\n", len(messages))
	text.WriteString("Chat Transcript:\n")
	for _, msg := range messages {
		fmt.Fprintf(&text, "%s: %s\n", b.senderName(msg), msg.Content)
	}

	var htm strings.Builder
	fmt.Fprintf(&htm, "<h2>%s - Chat Transcript</h2>\n", html.EscapeString(b.companyName))
	fmt.Fprintf(&htm, "<p>Thank you for chatting with %s!</p>\n", html.EscapeString(b.companyName))
	if sessionID != "" {
		htm.WriteString(`<div style="background-color: #f5f5f5; padding: 15px; border-radius: 5px; margin-bottom: 20px;">` + "\n")
		fmt.Fprintf(&htm, "  <p><strong>Session ID:</strong> %s</p>\n", html.EscapeString(sessionID))
		fmt.Fprintf(&htm, "  <p><strong>Date:</strong> %s</p>\n", now.Format(timeLayout))
		fmt.Fprintf(&htm, "  <p><strong>Total Messages:</strong> %d</p>\n", len(messages))
		htm.WriteString("</div>\n")
	}
	htm.WriteString("<h3>Chat Transcript:</h3>\n")
	htm.WriteString(`<div style="background-color: #f5f5f5; padding: 15px; border-radius: 5px;">` + "\n")
	for _, msg := range messages {
		content := strings.ReplaceAll(html.EscapeString(msg.Content), "\n", "<br>")
		htm.WriteString(`  <div style="margin-bottom: 10px;">` + "\n")
		fmt.Fprintf(&htm, "    <strong>%s:</strong> %s\n", html.EscapeString(b.senderName(msg)), content)
		htm.WriteString("  </div>\n")
	}
	htm.WriteString("</div>\n")

	return &Rendered{
		Subject: subject,
		Text:    text.String(),
		HTML:    htm.String(),
	}
}

func (b *Builder) senderName(msg model.Message) string {
	if msg.IsBot {
		return b.assistantName
	}
	return "You"
}
