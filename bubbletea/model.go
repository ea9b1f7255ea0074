package bubbletea

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bunnhack/letsim"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var _ tea.Model = Model{}

// Model is the Bubble Tea model for the letsim TUI.
type Model struct {
	// Input is the text input component. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable chat area. Exported for test access.
	Viewport viewport.Model

	run      AgentFunc
	project  ProjectFunc
	preview  PreviewFunc
	session  *letsim.Session
	theme    letsim.Theme
	styles   Styles
	explorer *Explorer

	blocks     []MessageBlock
	blockFocus int // index of focused collapsible block (-1 = none)

	// Blocks of the model call currently streaming. Tool call slots are
	// keyed by stream index and reset after every call; IDs are unique for
	// the whole run and route command output.
	activeText  *AssistantTextBlock
	activeCalls map[int]*ToolCallBlock
	callsByID   map[string]*ToolCallBlock

	running bool
	cancel  context.CancelFunc
	eventCh chan letsim.Event
	doneCh  chan error
	err     error

	projectRunning bool
	projectBlock   *ProjectBlock
	projectCancel  context.CancelFunc
	outputCh       chan string

	ready        bool
	showExplorer bool
	tokens       int
	notice       string
}

// Option configures a Model.
type Option func(*Model)

// WithStore shows the paths of store in the explorer panel.
func WithStore(store letsim.ProjectStore) Option {
	return func(m *Model) {
		m.explorer.store = store
	}
}

// WithProjectFunc enables Ctrl+R.
func WithProjectFunc(fn ProjectFunc) Option {
	return func(m *Model) {
		m.project = fn
	}
}

// WithPreviewFunc enables Ctrl+P.
func WithPreviewFunc(fn PreviewFunc) Option {
	return func(m *Model) {
		m.preview = fn
	}
}

// New creates a new TUI Model with the given agent function, session, and theme.
func New(run AgentFunc, session *letsim.Session, theme letsim.Theme, opts ...Option) Model {
	ti := textinput.New()
	ti.Placeholder = "Describe what to build..."
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0

	styles := NewStyles(theme)
	m := Model{
		Input:       ti,
		run:         run,
		session:     session,
		theme:       theme,
		styles:      styles,
		explorer:    NewExplorer(nil, styles),
		blockFocus:  -1,
		activeCalls: make(map[int]*ToolCallBlock),
		callsByID:   make(map[string]*ToolCallBlock),
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.tokens = EstimateTokens(session.Messages())
	return m
}

// Running returns whether the agent is currently running.
func (m Model) Running() bool { return m.running }

// ProjectRunning returns whether a project run is in progress.
func (m Model) ProjectRunning() bool { return m.projectRunning }

// Err returns the last error, if any.
func (m Model) Err() error { return m.err }

// Blocks returns the conversation blocks.
func (m Model) Blocks() []MessageBlock { return m.blocks }

// Focus returns the index of the focused collapsible block, or -1.
func (m Model) Focus() int { return m.blockFocus }

// SetRunningWithCancel is a test helper that puts the model in a running
// state with a cancel function.
func SetRunningWithCancel(m Model, cancel func()) Model {
	m.running = true
	m.cancel = cancel
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m = m.handleWindowSize(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StreamEventMsg:
		m = m.processEvent(msg.Event)
		m = m.refresh()
		if m.eventCh != nil {
			return m, listenForEvent(m.eventCh, m.doneCh)
		}
		return m, nil

	case AgentDoneMsg:
		m.running = false
		m.cancel = nil
		m.eventCh = nil
		m.doneCh = nil
		m.activeText = nil
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			m.err = msg.Err
			m.blocks = append(m.blocks, NewErrorBlock(msg.Err, m.styles))
		}
		m.tokens = EstimateTokens(m.session.Messages())
		m = m.updateBlockFocus()
		m = m.refresh()
		cmds = append(cmds, m.Input.Focus())
		return m, tea.Batch(cmds...)

	case ProjectOutputMsg:
		if m.projectBlock != nil {
			m.projectBlock.AppendOutput(msg.Chunk)
			m = m.refresh()
		}
		if m.outputCh != nil {
			return m, listenForOutput(m.outputCh)
		}
		return m, nil

	case ProjectDoneMsg:
		m.projectRunning = false
		m.projectCancel = nil
		if m.projectBlock != nil {
			m.projectBlock.Finish(msg.Err)
		}
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			m.notice = "Run failed"
		} else if msg.Err == nil {
			m.notice = "Dev server started"
		}
		m = m.refresh()
		return m, nil

	case PreviewDoneMsg:
		if msg.Err != nil {
			m.blocks = append(m.blocks, NewErrorBlock(msg.Err, m.styles))
			m = m.refresh()
			return m, nil
		}
		m.notice = "Preview: " + msg.Location
		return m, nil
	}

	// Viewport always receives messages for scrolling (keyboard and mouse).
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	if !m.running {
		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder

	top := m.Viewport.View()
	if m.showExplorer {
		h := m.Viewport.Height
		bar := m.styles.Muted.Render(strings.TrimSuffix(strings.Repeat("│\n", h), "\n"))
		top = lipgloss.JoinHorizontal(lipgloss.Top, top, bar, m.explorer.View(ExplorerWidth, h))
	}
	b.WriteString(top)
	b.WriteString("\n")

	b.WriteString(m.statusLine())
	b.WriteString("\n")

	b.WriteString(m.Input.View())

	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	inputH := 1
	statusHeight := 1
	borderHeight := 2 // newlines between sections
	vpHeight := max(msg.Height-inputH-statusHeight-borderHeight, 1)

	chatWidth := msg.Width
	m.showExplorer = msg.Width-ExplorerWidth-1 >= minChatWidth
	if m.showExplorer {
		chatWidth = msg.Width - ExplorerWidth - 1
	}

	if !m.ready {
		m.Viewport = viewport.New(chatWidth, vpHeight)
		m = m.renderSession()
		m.ready = true
	} else {
		m.Viewport.Width = chatWidth
		m.Viewport.Height = vpHeight
	}
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()

	m.Input.Width = msg.Width
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.running {
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
		if m.projectCancel != nil {
			m.projectCancel()
		}
		return m, tea.Quit

	case tea.KeyEnter:
		if m.running {
			return m, nil
		}
		text := strings.TrimSpace(m.Input.Value())
		if text == "" {
			return m, nil
		}
		return m.submitInput(text)

	case tea.KeyTab:
		if !m.running && m.blockFocus >= 0 {
			block, cmd := m.blocks[m.blockFocus].Update(ToggleMsg{})
			m.blocks[m.blockFocus] = block
			m.Viewport.SetContent(m.renderContent())
			return m, cmd
		}
		return m, nil

	case tea.KeyShiftTab:
		if !m.running {
			m = m.cycleFocusPrev()
		}
		return m, nil

	case tea.KeyCtrlN:
		if !m.running {
			model := m.session.CycleModel()
			m.notice = "Model: " + model.Label
		}
		return m, nil

	case tea.KeyCtrlR:
		if m.project == nil || m.projectRunning {
			return m, nil
		}
		return m.startProject()

	case tea.KeyCtrlP:
		if m.preview == nil {
			return m, nil
		}
		return m, buildPreview(m.preview)
	}

	// When idle, pass keys to both input (for typing) and viewport
	// (for scrolling). Only forward non-character keys to viewport to avoid
	// conflicts (e.g. 'j'/'k' are viewport scroll AND text characters).
	if !m.running {
		var cmd tea.Cmd
		var cmds []tea.Cmd

		if msg.Type != tea.KeyRunes {
			m.Viewport, cmd = m.Viewport.Update(msg)
			cmds = append(cmds, cmd)
		}

		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)

		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m Model) submitInput(text string) (tea.Model, tea.Cmd) {
	m.Input.SetValue("")
	m.err = nil
	m.notice = ""

	m.session.Append(letsim.UserMessage{Content: text, Timestamp: time.Now()})
	m.tokens = EstimateTokens(m.session.Messages())

	m.blocks = append(m.blocks, NewUserMessageBlock(text, m.styles))
	m = m.refresh()

	m.activeText = nil
	m.activeCalls = make(map[int]*ToolCallBlock)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.eventCh = make(chan letsim.Event, 256)
	m.doneCh = make(chan error, 1)
	m.running = true

	m.Input.Blur()

	return m, tea.Batch(
		startAgent(m.run, ctx, m.session, m.eventCh, m.doneCh),
		listenForEvent(m.eventCh, m.doneCh),
	)
}

func (m Model) startProject() (tea.Model, tea.Cmd) {
	ctx, cancel := context.WithCancel(context.Background())
	m.projectCancel = cancel
	m.projectRunning = true
	m.projectBlock = NewProjectBlock(m.styles)
	m.blocks = append(m.blocks, m.projectBlock)
	m = m.updateBlockFocus()
	m = m.refresh()

	// The channel stays open: the dev server keeps writing after the run
	// step returns.
	m.outputCh = make(chan string, 256)
	return m, tea.Batch(
		runProject(m.project, ctx, m.outputCh),
		listenForOutput(m.outputCh),
	)
}

// renderSession creates blocks from existing session messages.
func (m Model) renderSession() Model {
	for _, msg := range m.session.Messages() {
		switch msg := msg.(type) {
		case letsim.UserMessage:
			m.blocks = append(m.blocks, NewUserMessageBlock(msg.Content, m.styles))
		case letsim.AssistantMessage:
			if msg.Content != "" {
				block := NewAssistantTextBlock(m.theme)
				block.Append(msg.Content)
				m.blocks = append(m.blocks, block)
			}
			for _, c := range msg.ToolCalls {
				block := NewToolCallBlock(c.Name, c.ID, m.styles)
				block.Merge(c.ID, c.Name, c.Arguments)
				m.blocks = append(m.blocks, block)
			}
		case letsim.ToolMessage:
			m.blocks = append(m.blocks, NewToolResultBlock(msg.Name, msg.Content, msg.IsError, m.styles))
		}
	}
	return m.updateBlockFocus()
}

func (m Model) refresh() Model {
	if !m.ready {
		return m
	}
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()
	return m
}

func (m Model) renderContent() string {
	if len(m.blocks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, block := range m.blocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(block.View(m.Viewport.Width))
	}
	return b.String()
}

// processEvent routes a streaming event to the appropriate block.
func (m Model) processEvent(evt letsim.Event) Model {
	switch e := evt.(type) {
	case letsim.EventTextDelta:
		if m.activeText == nil {
			m.activeText = NewAssistantTextBlock(m.theme)
			m.blocks = append(m.blocks, m.activeText)
		}
		m.activeText.Append(e.Delta)
		m = m.updateBlockFocus()
	case letsim.EventToolCallDelta:
		b, ok := m.activeCalls[e.Index]
		if !ok {
			b = NewToolCallBlock("", "", m.styles)
			m.blocks = append(m.blocks, b)
			m.activeCalls[e.Index] = b
			m = m.updateBlockFocus()
		}
		b.Merge(e.ID, e.Name, e.ArgsFragment)
		if id := b.ID(); id != "" {
			m.callsByID[id] = b
		}
	case letsim.EventDone:
		m.activeText = nil
		m.activeCalls = make(map[int]*ToolCallBlock)
	case letsim.EventCommandOutput:
		if b, ok := m.callsByID[e.ID]; ok {
			b.AppendOutput(e.Chunk)
		}
	case letsim.EventToolResult:
		m.activeText = nil
		m.activeCalls = make(map[int]*ToolCallBlock)
		m.blocks = append(m.blocks, NewToolResultBlock(e.Name, e.Content, e.IsError, m.styles))
		m = m.updateBlockFocus()
	case letsim.EventFilesApplied:
		m.explorer.MarkApplied(e.Paths)
		m.blocks = append(m.blocks, NewFilesAppliedBlock(e.Paths, m.styles))
	}
	return m
}

// updateBlockFocus scans backwards to find the last collapsible block.
// Only the focused block responds to Tab. ShiftTab cycles to the previous
// collapsible block.
func (m Model) updateBlockFocus() Model {
	m.blockFocus = -1
	for i := len(m.blocks) - 1; i >= 0; i-- {
		if isCollapsible(m.blocks[i]) {
			m.blockFocus = i
			return m
		}
	}
	return m
}

// cycleFocusPrev moves blockFocus to the previous collapsible block, wrapping around.
func (m Model) cycleFocusPrev() Model {
	if len(m.blocks) == 0 {
		return m
	}
	start := m.blockFocus - 1
	if start < 0 {
		start = len(m.blocks) - 1
	}
	for i := range len(m.blocks) {
		idx := (start - i + len(m.blocks)) % len(m.blocks)
		if isCollapsible(m.blocks[idx]) {
			m.blockFocus = idx
			return m
		}
	}
	m.blockFocus = -1
	return m
}

func (m Model) statusLine() string {
	model := m.session.Model()
	info := m.styles.Accent.Render(model.Label) + m.styles.Muted.Render(fmt.Sprintf(" · ~%d tokens", m.tokens))
	if m.err != nil {
		return info + " " + m.styles.Error.Render(fmt.Sprintf("Error: %v", m.err))
	}
	if m.running {
		return info + " " + m.styles.Muted.Render("Generating...")
	}
	if m.notice != "" {
		return info + " " + m.styles.Success.Render(m.notice)
	}
	return info + " " + m.styles.Muted.Render("Enter send · Tab toggle · Ctrl+N model · Ctrl+R run · Ctrl+P preview · Ctrl+C quit")
}

// startAgent runs the agent loop in a goroutine and signals completion.
func startAgent(run AgentFunc, ctx context.Context, session *letsim.Session, eventCh chan<- letsim.Event, doneCh chan<- error) tea.Cmd {
	return func() tea.Msg {
		err := run(ctx, session, func(e letsim.Event) {
			select {
			case eventCh <- e:
			case <-ctx.Done():
			}
		})
		close(eventCh)
		doneCh <- err
		return nil
	}
}

// listenForEvent waits for the next event from the channel.
// When the channel closes, it reads the error from doneCh and returns AgentDoneMsg.
func listenForEvent(ch <-chan letsim.Event, doneCh <-chan error) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			err := <-doneCh
			return AgentDoneMsg{Err: err}
		}
		return StreamEventMsg{Event: evt}
	}
}

// runProject runs fn and reports its result. Output that does not fit the
// channel buffer is dropped rather than blocking the dev server.
func runProject(fn ProjectFunc, ctx context.Context, outputCh chan<- string) tea.Cmd {
	return func() tea.Msg {
		err := fn(ctx, func(chunk string) {
			select {
			case outputCh <- chunk:
			default:
			}
		})
		return ProjectDoneMsg{Err: err}
	}
}

func listenForOutput(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		chunk, ok := <-ch
		if !ok {
			return nil
		}
		return ProjectOutputMsg{Chunk: chunk}
	}
}

func buildPreview(fn PreviewFunc) tea.Cmd {
	return func() tea.Msg {
		loc, err := fn()
		return PreviewDoneMsg{Location: loc, Err: err}
	}
}
