package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greeterhq/chat-server-go/internal/model"
)

func TestBuilder_Build(t *testing.T) {
	b := NewBuilder("Sofia", "Acme")
	now := time.Date(2025, time.March, 14, 15, 9, 26, 0, time.UTC)
	messages := []model.Message{
		{Content: "Hello! How can I assist you today?", IsBot: true},
		{Content: "I need help with my order\nit never arrived", IsBot: false},
	}

	r := b.Build("sess-42", messages, now)

	t.Run("builds subject from company name", func(t *testing.T) {
		assert.Equal(t, "Acme - Chat Transcript", r.Subject)
	})

	t.Run("text form keeps content verbatim", func(t *testing.T) {
		assert.Contains(t, r.Text, "Session ID: sess-42")
		assert.Contains(t, r.Text, "Total Messages: 2")
		assert.Contains(t, r.Text, "Sofia: Hello! How can I assist you today?")
		assert.Contains(t, r.Text, "You: I need help with my order\nit never arrived")
	})

	t.Run("html form escapes content and converts newlines", func(t *testing.T) {
		assert.Contains(t, r.HTML, "<strong>You:</strong> I need help with my order<br>it never arrived")
		assert.NotContains(t, r.HTML, "\nit never arrived")
	})

	t.Run("omits session block when id is empty", func(t *testing.T) {
		r := b.Build("", messages, now)
		assert.NotContains(t, r.Text, "Session ID:")
		assert.NotContains(t, r.HTML, "Session ID:")
	})
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain address", "my email is john.doe@example.com thanks", "john.doe@example.com"},
		{"first match wins", "cc a@mail.com and b@mail.com", "a@mail.com"},
		{"no address", "call me at 555-1234", ""},
		{"address with plus tag", "use sales+leads@shop.io", "sales+leads@shop.io"},
		{"bare text", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractEmail(tt.content))
		})
	}
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("a@b.co"))
	assert.False(t, IsValidEmail("a@b.c"))
	assert.False(t, IsValidEmail("not-an-email"))

	long := make([]byte, 250)
	for i := range long {
		long[i] = 'a'
	}
	require.False(t, IsValidEmail(string(long)+"@example.com"))
}
