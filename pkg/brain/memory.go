package brain

import (
	"strings"
	"sync"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Memory holds one conversation's history with graduated retention: the most
// recent exchanges are kept verbatim, and once the history outgrows its cap
// the older exchanges collapse into a one-line topic summary. The whole thing
// is cleared when the session returns to idle, so nothing carries across
// conversations.
type Memory struct {
	recent int
	max    int

	mu      sync.Mutex
	history []Message
	summary string
}

// NewMemory keeps the last recent exchanges verbatim and summarizes once the
// total exceeds max exchanges. An exchange is one user/assistant pair.
func NewMemory(recent, max int) *Memory {
	if recent <= 0 {
		recent = 6
	}
	if max < recent {
		max = 20
	}
	return &Memory{recent: recent, max: max}
}

// Compose assembles the full message list for one question: system prompt,
// summary of graduated history (if any), recent exchanges, then the question.
func (m *Memory) Compose(systemPrompt, question string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	messages := make([]Message, 0, len(m.history)+3)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	if m.summary != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: "Previous conversation summary: " + m.summary})
	}
	messages = append(messages, m.history...)
	messages = append(messages, Message{Role: RoleUser, Content: question})
	return messages
}

// Remember records one completed exchange and graduates old history into the
// summary when the cap is exceeded.
func (m *Memory) Remember(question, answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history,
		Message{Role: RoleUser, Content: question},
		Message{Role: RoleAssistant, Content: answer},
	)

	if len(m.history)/2 <= m.max {
		return
	}
	keep := m.recent * 2
	old := m.history[:len(m.history)-keep]
	m.history = append([]Message(nil), m.history[len(m.history)-keep:]...)

	topics := make([]string, 0, 5)
	for i := 0; i < len(old) && len(topics) < 5; i += 2 {
		topics = append(topics, firstRunes(old[i].Content, 50))
	}
	m.summary = "Earlier we discussed: " + strings.Join(topics, ", ")
}

// Clear forgets everything, summary included.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.history = nil
	m.summary = ""
	m.mu.Unlock()
}

// Exchanges reports how many user/assistant pairs are held verbatim.
func (m *Memory) Exchanges() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history) / 2
}

// Summary returns the graduated-history summary, empty until graduation has
// happened.
func (m *Memory) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
