package letsim

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Model is a selectable chat model.
type Model struct {
	Label string
	ID    string
}

// DefaultModels is the built-in model list. IDs containing "/" are routed to
// OpenRouter by the relay; the rest go to Poe.
var DefaultModels = []Model{
	{Label: "MiMo-V2-Flash", ID: "xiaomi/mimo-v2-flash:free"},
	{Label: "Claude 3.5 Sonnet", ID: "essentialai-rnj-1-t"},
	{Label: "GPT-4o", ID: "GPT-4o"},
	{Label: "Grok 4", ID: "Grok-4"},
}

// DefaultSystemPrompt instructs the model to answer with file blocks.
const DefaultSystemPrompt = `You are an AI coding assistant inside a minimal browser-style IDE.
When you create or modify project files you MUST output each file as a fenced block
whose header is ` + "```file:<path>" + ` followed by the complete file contents and a closing
` + "```" + ` fence. Always output whole files, never diffs. Paths are relative to the
project root and use forward slashes. Use the run_command tool for short
commands such as installing dependencies; the IDE starts the dev server itself.`

// Session is a single-writer conversation: the append-only message log plus
// the model selection. It is owned by one in-flight turn at a time.
type Session struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	messages []Message
	models   []Model
	current  int
}

// NewSession creates a session whose log starts with the system prompt.
// An empty prompt leaves the log empty; nil models means DefaultModels.
func NewSession(systemPrompt string, models []Model) *Session {
	if len(models) == 0 {
		models = DefaultModels
	}
	now := time.Now()
	s := &Session{
		ID:        newID(now),
		CreatedAt: now,
		UpdatedAt: now,
		models:    append([]Model(nil), models...),
	}
	if systemPrompt != "" {
		s.messages = append(s.messages, SystemMessage{Content: systemPrompt})
	}
	return s
}

func newID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Append adds messages to the end of the log.
func (s *Session) Append(msgs ...Message) {
	s.messages = append(s.messages, msgs...)
	s.UpdatedAt = time.Now()
}

// Messages returns a copy of the log.
func (s *Session) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the log.
func (s *Session) Len() int { return len(s.messages) }

// Model returns the currently selected model.
func (s *Session) Model() Model {
	if len(s.models) == 0 {
		return Model{}
	}
	return s.models[s.current]
}

// Models returns the selectable models.
func (s *Session) Models() []Model {
	return append([]Model(nil), s.models...)
}

// CycleModel advances to the next model, wrapping around, and returns it.
func (s *Session) CycleModel() Model {
	if len(s.models) == 0 {
		return Model{}
	}
	s.current = (s.current + 1) % len(s.models)
	return s.models[s.current]
}

// SetModel selects the model with the given ID. Unknown IDs are added to the
// list so ad-hoc models from flags or config still work.
func (s *Session) SetModel(id string) Model {
	for i, m := range s.models {
		if m.ID == id {
			s.current = i
			return m
		}
	}
	s.models = append(s.models, Model{Label: id, ID: id})
	s.current = len(s.models) - 1
	return s.models[s.current]
}
