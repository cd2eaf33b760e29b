package naming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var frozen = time.Date(2025, 7, 14, 9, 5, 0, 0, time.UTC)

const chatID = "89ecea6c-accc-4979-ac62-4c42a280073a"

func TestRender_Placeholders(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"defaults", "conversation_{datetime}.txt", "[89ecea6c] conversation_2025-07-14_09-05.txt"},
		{"model and user", "{user} with {model}.md", "[89ecea6c] Lili with llama3.1.md"},
		{"date and time", "{date} {time}", "[89ecea6c] 2025-07-14 09:05"},
		{"format override", "{date:%d-%m-%Y}.md", "[89ecea6c] 14-07-2025.md"},
		{"unknown placeholder stays literal", "{chat_id}-{model}-{foo:bar}", "[89ecea6c] {chat_id}-llama3.1-{foo:bar}"},
		{"no placeholders", "plain.txt", "[89ecea6c] plain.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(tt.template, "llama3.1:latest", "Lili", chatID, frozen)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_DefaultsForEmptyMetadata(t *testing.T) {
	got := Render("{model}-{user}", "", "", chatID, frozen)
	assert.Equal(t, "[89ecea6c] default-User", got)
}

func TestRender_KeepsVersionTags(t *testing.T) {
	got := Render("{model}", "qwen2:7b", "u", chatID, frozen)
	assert.Equal(t, "[89ecea6c] qwen2:7b", got)
}

func TestRenderer_IdempotentUnderFrozenClock(t *testing.T) {
	r := &Renderer{Template: "{model}_{datetime}.txt", Now: func() time.Time { return frozen }}
	first := r.Render("m", "u", chatID)
	second := r.Render("m", "u", chatID)
	assert.Equal(t, first, second)
}

func TestExtractShortID_RoundTrip(t *testing.T) {
	templates := []string{"conversation_{datetime}.txt", "{user}/{model}", "{date:%Y}", ""}
	for _, tmpl := range templates {
		name := Render(tmpl, "llama3.1:latest", "Lili", chatID, frozen)
		assert.Equal(t, chatID[:8], ExtractShortID(name), "template %q", tmpl)
	}

	ids := map[string]string{
		"ab-cd-ef-1234":  "ab-cd-ef",
		"local:abcdefgh": "local:ab",
		"abc":            "abc",
		"a b c d e f":    "a b c d ",
		"x]y]z":          "xyz",
		"héllo-wörld":    "héllo-wö",
	}
	for id, want := range ids {
		name := Render("conversation_{datetime}.txt", "llama3", "Lili", id, frozen)
		got, ok := ParseShortID(name)
		assert.True(t, ok, "id %q rendered as %q", id, name)
		assert.Equal(t, want, got, "id %q", id)
		assert.Equal(t, ShortID(id), got)
	}

	_, ok := ParseShortID(Render("x.txt", "m", "u", "", frozen))
	assert.False(t, ok, "empty id has no usable prefix")
}

func TestExtractShortID_FallbackIsRandom(t *testing.T) {
	a := ExtractShortID("conversation.txt")
	b := ExtractShortID("conversation.txt")
	assert.Len(t, a, ShortIDLength)
	assert.NotEqual(t, a, b)

	_, ok := ParseShortID("conversation.txt")
	assert.False(t, ok)
}

func TestConversationID(t *testing.T) {
	assert.Equal(t, chatID, ConversationID(chatID+".md"))
	assert.Equal(t, "a.b", ConversationID("/tmp/x/a.b.txt"))
	assert.Equal(t, "noext", ConversationID("noext"))
	assert.Equal(t, ".hidden", ConversationID(".hidden"))
}
