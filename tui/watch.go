// ABOUTME: WatchModel is an inline Bubble Tea model following one session's live timeline.
// ABOUTME: Renders the stage chain with spinners and durations plus typewriter-paced streaming text.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rsoaresd/tarsy-bot-sub002/api"
	"github.com/rsoaresd/tarsy-bot-sub002/live"
	"github.com/rsoaresd/tarsy-bot-sub002/timeline"
	"github.com/rsoaresd/tarsy-bot-sub002/typewriter"
)

const tickInterval = 100 * time.Millisecond

// WatchOption configures optional WatchModel behavior.
type WatchOption func(*WatchModel)

// WithRevealRate sets the typewriter reveal speed in characters per second.
func WithRevealRate(charsPerSecond float64) WatchOption {
	return func(m *WatchModel) {
		m.tw = typewriter.New(typewriter.WithRate(charsPerSecond))
	}
}

// WatchModel follows one session. The Merger is the single source of truth
// for timeline state; the model only holds presentation concerns.
type WatchModel struct {
	ctx    context.Context
	client *api.Client
	mgr    *live.Manager
	merger *timeline.Merger

	tw       *typewriter.Typewriter
	stream   viewport.Model
	streamID string // interaction currently feeding the typewriter
	streamIs timeline.StreamKind

	conn       live.Status
	wasOffline bool
	actionErr  string
	spinnerIdx int
	width      int

	start time.Time
}

// NewWatchModel creates a watcher for the session the manager is connected to.
func NewWatchModel(ctx context.Context, client *api.Client, mgr *live.Manager, merger *timeline.Merger, opts ...WatchOption) WatchModel {
	vp := viewport.New(80, 12)
	m := WatchModel{
		ctx:    ctx,
		client: client,
		mgr:    mgr,
		merger: merger,
		tw:     typewriter.New(),
		stream: vp,
		conn:   live.StatusConnecting,
		start:  time.Now(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init implements tea.Model: initial snapshot load plus the tick loop.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(
		RefreshCmd(m.ctx, m.client, m.merger.SessionID()),
		TickCmd(tickInterval),
	)
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.stream.Width = max(msg.Width-4, 20)
		return m, nil

	case ViewUpdateMsg:
		m.syncTypewriter()
		return m, nil

	case ConnStatusMsg:
		return m.handleConnStatus(msg.Status)

	case ConnErrorMsg:
		m.actionErr = api.Translate(msg.Err)
		return m, nil

	case SnapshotMsg:
		if msg.Err != nil {
			m.actionErr = api.Translate(msg.Err)
			return m, nil
		}
		m.merger.LoadSnapshot(msg.Detail.Session, msg.Detail.Stages, msg.Detail.Interactions)
		m.syncTypewriter()
		return m, nil

	case ActionResultMsg:
		if msg.Err != nil {
			m.actionErr = fmt.Sprintf("%s: %s", msg.Action, api.Translate(msg.Err))
		} else {
			m.actionErr = ""
		}
		return m, nil

	case TickMsg:
		return m.handleTick()

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	return m, nil
}

// handleConnStatus tracks connectivity and refreshes the snapshot after a
// reconnect to close any event gap.
func (m WatchModel) handleConnStatus(s live.Status) (tea.Model, tea.Cmd) {
	prev := m.conn
	m.conn = s
	if s == live.StatusReconnecting || s == live.StatusDisconnected {
		m.wasOffline = true
	}
	if s == live.StatusConnected && m.wasOffline && prev != live.StatusConnected {
		m.wasOffline = false
		return m, RefreshCmd(m.ctx, m.client, m.merger.SessionID())
	}
	return m, nil
}

func (m WatchModel) handleTick() (tea.Model, tea.Cmd) {
	m.spinnerIdx++
	m.syncTypewriter()
	m.stream.SetContent(m.tw.Visible())
	m.stream.GotoBottom()

	if m.merger.Session().Status.Terminal() && m.tw.Done() {
		return m, nil
	}
	return m, TickCmd(tickInterval)
}

func (m WatchModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.mgr.Close()
		return m, tea.Quit
	case "c":
		return m, CancelCmd(m.ctx, m.client, m.merger.SessionID())
	case "r":
		return m, ResumeCmd(m.ctx, m.client, m.merger.SessionID())
	case "R":
		if alertID := m.merger.Session().AlertID; alertID != "" {
			return m, ResubmitCmd(m.ctx, m.client, alertID)
		}
		return m, nil
	case "s":
		m.tw.Skip()
		return m, nil
	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		m.stream, cmd = m.stream.Update(msg)
		return m, cmd
	}
	return m, nil
}

// syncTypewriter points the typewriter at whatever text the session is
// producing right now: the newest in-flight stream, or the final analysis
// once the session ends. Prefix detection keeps the reveal position across
// incremental updates and restarts it when the source changes.
func (m *WatchModel) syncTypewriter() {
	session := m.merger.Session()
	if session.Status.Terminal() {
		if session.Result != "" {
			m.tw.SetText(session.Result)
		} else if session.ErrorMessage != "" {
			m.tw.SetText(session.ErrorMessage)
		}
		m.streamID = ""
		m.tw.Close()
		return
	}

	var newest *timeline.StreamingItem
	for _, item := range m.merger.Streaming() {
		it := item
		if newest == nil || it.UpdatedAt.After(newest.UpdatedAt) {
			newest = &it
		}
	}
	if newest == nil {
		return
	}
	m.streamID = newest.InteractionID
	m.streamIs = newest.Kind
	m.tw.SetText(newest.Content)
}

// View implements tea.Model.
func (m WatchModel) View() string {
	session := m.merger.Session()
	progress := timeline.ProgressFor(session.Status)

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("session %s", m.merger.SessionID())))
	b.WriteString("  ")
	b.WriteString(StyleForSession(session.Status).Render(string(session.Status)))
	b.WriteString(PendingStyle.Render(fmt.Sprintf("  %d%% · %s elapsed", progress.Percent, formatDuration(time.Since(m.start)))))
	b.WriteString("\n\n")

	for _, stage := range m.merger.Stages() {
		b.WriteString(m.renderStageLine(stage))
		b.WriteString("\n")
	}

	if m.tw.Visible() != "" {
		title := "final analysis"
		if m.streamID != "" {
			title = string(m.streamIs)
		}
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render(title))
		b.WriteString("\n")
		b.WriteString(StreamStyle.Render(m.stream.View()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	footer := fmt.Sprintf("%s · c cancel · r resume · R resubmit · s skip · q quit", m.conn)
	b.WriteString(FooterStyle.Render(footer))
	if m.actionErr != "" {
		b.WriteString(" ")
		b.WriteString(ErrorStyle.Render(m.actionErr))
	}
	b.WriteString("\n")
	return b.String()
}

// renderStageLine renders one stage execution row. Parallel children are
// indented under their parent with their positional labels.
func (m WatchModel) renderStageLine(stage timeline.StageExecution) string {
	indent := "  "
	label := stage.StageName
	if stage.ParentExecutionID != "" {
		indent = "      "
		// Placeholders already carry their positional label as the agent.
		label = stage.Agent
		if !stage.IsPlaceholder {
			label = timeline.ChildLabel(stage.ParallelType, stage.Agent, stage.ParallelIndex)
		}
	} else if stage.Agent != "" {
		label = fmt.Sprintf("%s (%s)", label, stage.Agent)
	}

	if stage.IsPlaceholder {
		return PendingStyle.Render(fmt.Sprintf("%s· %s  waiting...", indent, label))
	}

	style := StyleForStage(stage.Status)
	switch stage.Status {
	case timeline.StageActive:
		frame := SpinnerFrames[m.spinnerIdx%len(SpinnerFrames)]
		return style.Render(fmt.Sprintf("%s%s %s  running · %s", indent, frame, label, m.stageCounts(stage)))
	case timeline.StageCompleted:
		return style.Render(fmt.Sprintf("%s✓ %s  %s · %s", indent, label, stageDuration(stage), m.stageCounts(stage)))
	case timeline.StageFailed:
		line := fmt.Sprintf("%s✗ %s  failed (%s)", indent, label, stageDuration(stage))
		if stage.ErrorMessage != "" {
			line += ": " + stage.ErrorMessage
		}
		return style.Render(line)
	default:
		return style.Render(fmt.Sprintf("%s  %s", indent, label))
	}
}

func (m WatchModel) stageCounts(stage timeline.StageExecution) string {
	return fmt.Sprintf("%d llm / %d tool", stage.LLMCount, stage.MCPCount)
}

// stageDuration derives the elapsed duration from the stage's microsecond
// timestamps; unfinished or unreported stages render as a dash.
func stageDuration(stage timeline.StageExecution) string {
	if stage.StartedAtUS == 0 || stage.EndedAtUS <= stage.StartedAtUS {
		return "–"
	}
	return formatDuration(time.Duration(stage.EndedAtUS-stage.StartedAtUS) * time.Microsecond)
}

// formatDuration renders a duration compactly: 850ms, 12.3s, 2m05s.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
