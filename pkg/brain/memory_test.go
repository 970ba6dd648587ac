package brain

import (
	"fmt"
	"strings"
	"testing"
)

func TestComposeOrdersSystemHistoryQuestion(t *testing.T) {
	m := NewMemory(6, 20)
	m.Remember("what do whales eat", "Mostly krill and small fish.")

	messages := m.Compose("You are Bud.", "how big are they")

	want := []Message{
		{Role: RoleSystem, Content: "You are Bud."},
		{Role: RoleUser, Content: "what do whales eat"},
		{Role: RoleAssistant, Content: "Mostly krill and small fish."},
		{Role: RoleUser, Content: "how big are they"},
	}
	if len(messages) != len(want) {
		t.Fatalf("compose returned %d messages, want %d: %v", len(messages), len(want), messages)
	}
	for i := range want {
		if messages[i] != want[i] {
			t.Errorf("message[%d] = %+v, want %+v", i, messages[i], want[i])
		}
	}
}

func TestComposeWithoutSystemPrompt(t *testing.T) {
	m := NewMemory(6, 20)

	messages := m.Compose("", "hello")

	if len(messages) != 1 {
		t.Fatalf("compose returned %d messages, want just the question", len(messages))
	}
	if messages[0].Role != RoleUser || messages[0].Content != "hello" {
		t.Errorf("message = %+v, want the bare question", messages[0])
	}
}

func TestGraduationSummarizesOldestTopics(t *testing.T) {
	m := NewMemory(2, 3)

	m.Remember("why is the sky blue", "a1")
	m.Remember("how do planes fly", "a2")
	m.Remember("what do ants eat", "a3")
	if m.Summary() != "" {
		t.Fatalf("summary appeared before the cap was exceeded: %q", m.Summary())
	}
	m.Remember("where do stars go", "a4")

	if got := m.Exchanges(); got != 2 {
		t.Errorf("exchanges after graduation = %d, want the 2 most recent", got)
	}
	want := "Earlier we discussed: why is the sky blue, how do planes fly"
	if got := m.Summary(); got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}

	messages := m.Compose("prompt", "next question")
	if messages[1].Role != RoleSystem || messages[1].Content != "Previous conversation summary: "+want {
		t.Errorf("compose did not carry the summary, got %+v", messages[1])
	}
	// Verbatim history must be only the recent exchanges.
	if messages[2].Content != "what do ants eat" {
		t.Errorf("oldest verbatim message = %q, want the third question", messages[2].Content)
	}
}

func TestGraduationTruncatesLongTopics(t *testing.T) {
	m := NewMemory(1, 1)
	long := strings.Repeat("x", 60)

	m.Remember(long, "a1")
	m.Remember("short", "a2")

	want := "Earlier we discussed: " + strings.Repeat("x", 50)
	if got := m.Summary(); got != want {
		t.Errorf("summary = %q, want the topic cut to 50 runes", got)
	}
}

func TestGraduationCapsTopicsAtFive(t *testing.T) {
	m := NewMemory(1, 1)
	for i := 0; i < 8; i++ {
		m.Remember(fmt.Sprintf("q%d", i), "a")
	}

	summary := m.Summary()
	if n := strings.Count(summary, "q"); n > 5 {
		t.Errorf("summary holds %d topics, want at most 5: %q", n, summary)
	}
}

func TestClearForgetsEverything(t *testing.T) {
	m := NewMemory(1, 1)
	m.Remember("q1", "a1")
	m.Remember("q2", "a2")
	if m.Summary() == "" {
		t.Fatal("expected a summary before clearing")
	}

	m.Clear()

	if m.Exchanges() != 0 {
		t.Errorf("exchanges = %d after clear, want 0", m.Exchanges())
	}
	if m.Summary() != "" {
		t.Errorf("summary = %q after clear, want empty", m.Summary())
	}
	if messages := m.Compose("p", "q"); len(messages) != 2 {
		t.Errorf("compose after clear = %v, want only prompt and question", messages)
	}
}
