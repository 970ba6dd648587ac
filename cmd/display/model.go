package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sproutlab/bud/pkg/bus"
	"github.com/sproutlab/bud/pkg/session"
)

// busEvent is one bus message handed to the UI loop.
type busEvent struct {
	topic   string
	payload string
}

// busClosedMsg means the event channel is gone and the UI should exit.
type busClosedMsg struct{}

type tickMsg time.Time

type lineKind int

const (
	lineChild lineKind = iota
	lineBud
	lineEvent
)

type transcriptLine struct {
	kind lineKind
	text string
	at   time.Time
}

const maxTranscript = 500

// model renders the live view of the robot: current phase and face up top,
// the running conversation underneath, and the last wake score in a ticker.
type model struct {
	events <-chan busEvent

	phase    session.State
	emotion  string
	speaking bool

	lastScore   float64
	lastScoreAt time.Time

	lines  []transcriptLine
	scroll int // lines from the bottom; 0 while following
	live   bool

	width  int
	height int

	startedAt time.Time
}

func newModel(events <-chan busEvent) model {
	return model{
		events:    events,
		emotion:   session.EmotionSleeping,
		live:      true,
		startedAt: time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tick())
}

// waitForEvent pumps one bus message into the program, re-armed from Update.
func waitForEvent(ch <-chan busEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return busClosedMsg{}
		}
		return ev
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case busEvent:
		m = m.apply(msg)
		return m, waitForEvent(m.events)

	case busClosedMsg:
		return m, tea.Quit

	case tickMsg:
		// keeps the "ago" ticker and uptime moving
		return m, tick()
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		m.live = false
		if m.scroll < len(m.lines)-1 {
			m.scroll++
		}
		return m, nil

	case "down", "j":
		if m.scroll > 0 {
			m.scroll--
		}
		if m.scroll == 0 {
			m.live = true
		}
		return m, nil

	case "f", "end":
		m.live = true
		m.scroll = 0
		return m, nil

	case "c":
		m.lines = nil
		m.scroll = 0
		m.live = true
		return m, nil
	}
	return m, nil
}

func (m model) apply(ev busEvent) model {
	now := time.Now()
	switch ev.topic {
	case bus.TopicSessionState:
		if st, ok := session.ParseState(ev.payload); ok {
			m.phase = st
		}

	case bus.TopicEmotion:
		m.emotion = strings.TrimSpace(ev.payload)

	case bus.TopicWakeDetected:
		score, err := strconv.ParseFloat(strings.TrimSpace(ev.payload), 64)
		if err != nil {
			return m
		}
		m.lastScore = score
		m.lastScoreAt = now
		m = m.append(transcriptLine{
			kind: lineEvent,
			text: fmt.Sprintf("wake word detected (score %.2f)", score),
			at:   now,
		})

	case bus.TopicTranscription:
		m = m.append(transcriptLine{kind: lineChild, text: ev.payload, at: now})

	case bus.TopicLLMResponse:
		m = m.append(transcriptLine{kind: lineBud, text: ev.payload, at: now})

	case bus.TopicSpeaking:
		m.speaking = strings.EqualFold(strings.TrimSpace(ev.payload), "true")
	}
	return m
}

func (m model) append(ln transcriptLine) model {
	m.lines = append(m.lines, ln)
	if len(m.lines) > maxTranscript {
		m.lines = m.lines[len(m.lines)-maxTranscript:]
	}
	if !m.live && m.scroll < len(m.lines)-1 {
		// hold the viewed region still while new lines arrive below
		m.scroll++
	}
	return m
}

func (m model) View() string {
	if m.width == 0 {
		return "starting..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, dividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderTranscript())
	sections = append(sections, dividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderTicker())
	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m model) renderHeader() string {
	title := titleStyle.Render("BUD")
	face := faceStyle.Render(" " + face(m.emotion) + " ")
	badge := phaseStyle(m.phase.String()).Render(strings.ToUpper(m.phase.String()))

	var dot string
	if m.speaking {
		dot = " " + speakingDotStyle.Render("● speaking")
	}
	return title + face + badge + dot
}

func face(emotion string) string {
	switch emotion {
	case session.EmotionListening:
		return "(o_o)"
	case session.EmotionThinking:
		return "(._.?)"
	case session.EmotionTalking:
		return "(^o^)"
	default:
		return "(-_-) zZ"
	}
}

func (m model) transcriptHeight() int {
	// header, two dividers, ticker, footer
	h := m.height - 5
	if h < 3 {
		h = 3
	}
	return h
}

func (m model) renderTranscript() string {
	visible := m.transcriptHeight()
	total := len(m.lines)

	scroll := m.scroll
	if scroll > total-1 {
		scroll = total - 1
	}
	if scroll < 0 {
		scroll = 0
	}
	end := total - scroll
	start := end - visible
	if start < 0 {
		start = 0
	}

	rows := make([]string, 0, visible)
	for _, ln := range m.lines[start:end] {
		rows = append(rows, m.renderLine(ln))
	}
	for len(rows) < visible {
		rows = append(rows, "")
	}
	return strings.Join(rows, "\n")
}

func (m model) renderLine(ln transcriptLine) string {
	ts := timestampStyle.Render(ln.at.Format("15:04:05"))

	var label, text string
	switch ln.kind {
	case lineChild:
		label = childStyle.Render(" you ")
		text = ln.text
	case lineBud:
		label = budStyle.Render(" bud ")
		text = ln.text
	default:
		label = eventStyle.Render("  ·  ")
		text = eventStyle.Render(ln.text)
	}
	return ts + label + truncate(text, m.width-14)
}

func (m model) renderTicker() string {
	var score string
	if m.lastScoreAt.IsZero() {
		score = scoreStyle.Render("wake —")
	} else {
		ago := time.Since(m.lastScoreAt).Round(time.Second)
		score = scoreStyle.Render(fmt.Sprintf("wake %.2f", m.lastScore)) +
			timestampStyle.Render(fmt.Sprintf(" · %s ago", ago))
	}
	up := timestampStyle.Render(fmt.Sprintf("   up %s", time.Since(m.startedAt).Round(time.Second)))

	var follow string
	if !m.live {
		follow = timestampStyle.Render("   [scrolled]")
	}
	return score + up + follow
}

func (m model) renderFooter() string {
	keys := []struct{ key, desc string }{
		{"q", "quit"},
		{"↑/↓", "scroll"},
		{"f", "follow"},
		{"c", "clear"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, footerKeyStyle.Render(k.key)+" "+footerDescStyle.Render(k.desc))
	}
	return strings.Join(parts, footerDescStyle.Render(" · "))
}

func truncate(s string, max int) string {
	if max <= 1 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
