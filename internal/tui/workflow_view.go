package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/disputeflow/internal/workflow"
	"github.com/kingrea/disputeflow/internal/workflow/engine"
)

var (
	labelStyleClosed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleStalled = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleAction  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

type keyMap struct {
	Submit key.Binding
	Reset  key.Binding
	Back   key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Reset, k.Back, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultKeys = keyMap{
	Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit decision")),
	Reset:  key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "restart")),
	Back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "workflows")),
	Quit:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

type definitionLoadedMsg struct {
	definition workflow.Definition
	err        error
}

type runFinishedMsg struct {
	result engine.Result
	err    error
}

// workflowView steps one workflow: every submitted decision resumes the run
// from the node where the previous run stopped.
type workflowView struct {
	app           *App
	workflowID    string
	definition    workflow.Definition
	loaded        bool
	err           error
	currentNodeID string
	result        engine.Result
	hasResult     bool
	runs          int

	input textinput.Model
	table table.Model
	help  help.Model
	keys  keyMap
}

func newWorkflowView(app *App, workflowID string) *workflowView {
	input := textinput.New()
	input.Placeholder = "approve, reject, yes, no…"
	input.Prompt = "Decision › "
	input.CharLimit = 256
	input.Width = 40
	input.Cursor.SetMode(cursor.CursorStatic)
	input.Focus()

	logTable := table.New(
		table.WithColumns([]table.Column{
			{Title: "#", Width: 3},
			{Title: "Event", Width: 14},
			{Title: "Node", Width: 12},
			{Title: "Message", Width: 60},
		}),
		table.WithHeight(12),
	)

	return &workflowView{
		app:        app,
		workflowID: strings.TrimSpace(workflowID),
		input:      input,
		table:      logTable,
		help:       help.New(),
		keys:       defaultKeys,
	}
}

func (v *workflowView) Init() tea.Cmd {
	st := v.app.store
	id := v.workflowID
	return func() tea.Msg {
		def, err := st.Load(context.Background(), id)
		return definitionLoadedMsg{definition: def, err: err}
	}
}

func (v *workflowView) Update(msg tea.Msg) tea.Cmd {
	switch m := msg.(type) {
	case definitionLoadedMsg:
		if m.err != nil {
			v.err = m.err
			v.setStatus(fmt.Sprintf("Workflow error: %v", m.err))
			v.app.logger.Error("Workflow %s failed to load: %v", v.workflowID, m.err)
			return nil
		}
		v.definition = m.definition
		v.loaded = true
		v.app.logger.Info("Workflow %s loaded (%d nodes, %d edges)", v.workflowID, len(m.definition.Nodes), len(m.definition.Edges))
		return v.run(nil)
	case runFinishedMsg:
		if m.err != nil {
			v.err = m.err
			v.setStatus(fmt.Sprintf("Run failed: %v", m.err))
			v.app.logger.Error("Workflow %s run failed: %v", v.workflowID, m.err)
			return nil
		}
		v.applyResult(m.result)
		return nil
	case tea.WindowSizeMsg:
		v.table.SetWidth(max(40, m.Width-8))
		v.table.SetHeight(max(5, m.Height-16))
		v.help.Width = m.Width
		return nil
	case tea.KeyMsg:
		return v.handleKeyMsg(m)
	default:
		return nil
	}
}

func (v *workflowView) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, v.keys.Submit):
		if !v.hasResult {
			return nil
		}
		decision := strings.TrimSpace(v.input.Value())
		v.input.Reset()
		payload := engine.Payload{engine.KeyCurrentNodeID: v.currentNodeID}
		if decision != "" {
			payload[engine.KeyDecision] = decision
		}
		v.app.logger.Info("Workflow %s · decision %q at %s", v.workflowID, decision, v.currentNodeID)
		return v.run(payload)
	case key.Matches(msg, v.keys.Reset):
		if !v.loaded {
			return nil
		}
		v.currentNodeID = ""
		v.input.Reset()
		v.app.logger.Info("Workflow %s restarted", v.workflowID)
		return v.run(nil)
	}
	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return cmd
}

func (v *workflowView) run(payload engine.Payload) tea.Cmd {
	def := v.definition
	runner := v.app.engine
	return func() tea.Msg {
		result, err := runner.Run(context.Background(), engine.Request{
			Nodes:   def.Nodes,
			Edges:   def.Edges,
			Payload: payload,
		})
		return runFinishedMsg{result: result, err: err}
	}
}

func (v *workflowView) applyResult(result engine.Result) {
	v.err = nil
	v.result = result
	v.hasResult = true
	v.runs++
	v.currentNodeID = result.NextNode.ID
	v.table.SetRows(logRows(result.Log))
	v.table.GotoBottom()

	var status string
	switch result.Stop {
	case engine.StopAction:
		status = fmt.Sprintf("Awaiting decision at %s", describeNode(result))
	case engine.StopEnd:
		status = fmt.Sprintf("Workflow closed at %s", describeNode(result))
	default:
		status = fmt.Sprintf("Run stalled at %s (%s)", describeNode(result), result.Stop)
	}
	v.setStatus(status)
	v.app.logger.Info("Workflow %s · run %s stopped at %s (%s)", v.workflowID, result.RunID, result.NextNode.ID, result.Stop)
}

func (v *workflowView) View() string {
	if v.err != nil {
		return fmt.Sprintf("Workflow error: %v\n\n%s", v.err, v.help.View(v.keys))
	}
	if !v.hasResult {
		return "Preparing workflow…"
	}
	title := v.definition.Name
	if title == "" {
		title = humanizeWorkflowID(v.workflowID)
	}
	statusLine := fmt.Sprintf("Workflow: %s · Node: %s · Stop: %s",
		title, describeNode(v.result), stopLabel(v.result.Stop))
	detail := detailTextStyle.Render(fmt.Sprintf("Run %d · %s · %d step(s)", v.runs, v.result.RunID, v.result.Steps))
	lines := []string{
		statusLine,
		detail,
		"",
		v.table.View(),
		"",
		v.input.View(),
		"",
		v.help.View(v.keys),
	}
	return strings.Join(lines, "\n")
}

func (v *workflowView) setStatus(msg string) {
	v.app.statusMsg = msg
}

func logRows(log engine.Log) []table.Row {
	rows := make([]table.Row, 0, len(log))
	for _, entry := range log {
		rows = append(rows, table.Row{
			strconv.Itoa(entry.Step),
			string(entry.Event),
			entry.Node.ID,
			entry.Message,
		})
	}
	return rows
}

func describeNode(result engine.Result) string {
	node := result.NextNode
	if node.Label == "" {
		return node.ID
	}
	return fmt.Sprintf("%s (%s)", node.ID, node.Label)
}

func stopLabel(stop engine.StopReason) string {
	text := titleCase(string(stop))
	switch stop {
	case engine.StopAction:
		return labelStyleAction.Render(text)
	case engine.StopEnd:
		return labelStyleClosed.Render(text)
	default:
		return labelStyleStalled.Render(text)
	}
}
