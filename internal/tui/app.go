// internal/tui/app.go
//
// This is the operator console for disputeflow. It uses bubbletea, which
// follows The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen

package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/disputeflow/internal/logging"
	"github.com/kingrea/disputeflow/internal/workflow/engine"
	"github.com/kingrea/disputeflow/internal/workflow/store"
)

// appState represents which "screen" we're on
type appState int

const (
	stateWorkflowSelect appState = iota // Workflow picker
	stateWorkflowRun                    // Stepping through a workflow
)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithEngine overrides the engine used for runs.
func WithEngine(e *engine.Engine) AppOption {
	return func(a *App) {
		if e != nil {
			a.engine = e
		}
	}
}

// WithLogger records console activity and shows the latest lines in a panel.
func WithLogger(l *logging.Logger) AppOption {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithWorkflow skips the picker and opens id directly.
func WithWorkflow(id string) AppOption {
	return func(a *App) {
		a.initialWorkflow = strings.TrimSpace(id)
	}
}

type workflowsLoadedMsg struct {
	ids []string
	err error
}

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	state           appState
	store           store.Store
	engine          *engine.Engine
	logger          *logging.Logger
	initialWorkflow string

	workflowView    *workflowView
	workflowMenu    list.Model
	workflowChoices []workflowOption

	statusMsg string
	err       error

	// Window size (we get this from bubbletea)
	width  int
	height int
}

type workflowOption struct {
	id    string
	title string
	desc  string
}

func (o workflowOption) Title() string       { return o.title }
func (o workflowOption) Description() string { return o.desc }
func (o workflowOption) FilterValue() string { return o.id }

func (o workflowOption) ID() string { return o.id }

// NewApp creates a console backed by st.
func NewApp(st store.Store, opts ...AppOption) (*App, error) {
	if st == nil {
		return nil, fmt.Errorf("tui: workflow store is required")
	}
	workflowMenu := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	workflowMenu.Title = "Select Workflow"
	workflowMenu.SetShowStatusBar(false)
	workflowMenu.SetFilteringEnabled(false)
	workflowMenu.DisableQuitKeybindings()

	app := &App{
		state:        stateWorkflowSelect,
		store:        st,
		engine:       engine.New(),
		workflowMenu: workflowMenu,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app, nil
}

// Init is the first function called. It returns an initial command.
func (a *App) Init() tea.Cmd {
	if a.initialWorkflow != "" {
		_, cmd := a.startWorkflowRun(a.initialWorkflow)
		return cmd
	}
	return a.loadWorkflows()
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.workflowMenu.SetSize(max(0, msg.Width-6), max(0, msg.Height-10))
		if a.state == stateWorkflowRun && a.workflowView != nil {
			return a, a.workflowView.Update(msg)
		}
		return a, nil

	case workflowsLoadedMsg:
		if msg.err != nil {
			a.err = msg.err
			a.statusMsg = fmt.Sprintf("Unable to list workflows: %v", msg.err)
			a.logger.Error("Workflow list failed: %v", msg.err)
			return a, nil
		}
		a.err = nil
		a.setWorkflowChoices(msg.ids)
		if len(msg.ids) == 0 {
			a.statusMsg = "No workflows found"
		} else {
			a.statusMsg = "Select a workflow to run"
		}
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "q":
			if a.state == stateWorkflowSelect {
				return a, tea.Quit
			}
		case "esc":
			if a.state == stateWorkflowRun {
				return a.returnToSelection()
			}
			return a, nil
		case "enter":
			if a.state == stateWorkflowSelect {
				return a.confirmWorkflowSelection()
			}
		}
	}

	var cmd tea.Cmd
	switch a.state {
	case stateWorkflowSelect:
		a.workflowMenu, cmd = a.workflowMenu.Update(msg)
	case stateWorkflowRun:
		if a.workflowView != nil {
			cmd = a.workflowView.Update(msg)
		}
	}
	return a, cmd
}

func (a *App) loadWorkflows() tea.Cmd {
	st := a.store
	return func() tea.Msg {
		ids, err := st.List(context.Background())
		return workflowsLoadedMsg{ids: ids, err: err}
	}
}

func (a *App) setWorkflowChoices(ids []string) {
	a.workflowChoices = a.workflowChoices[:0]
	items := make([]list.Item, 0, len(ids))
	for _, id := range ids {
		option := workflowOption{id: id, title: humanizeWorkflowID(id), desc: id}
		a.workflowChoices = append(a.workflowChoices, option)
		items = append(items, option)
	}
	a.workflowMenu.SetItems(items)
}

func (a *App) confirmWorkflowSelection() (tea.Model, tea.Cmd) {
	item, ok := a.workflowMenu.SelectedItem().(workflowOption)
	if !ok {
		a.statusMsg = "Workflow selection unavailable"
		return a, nil
	}
	a.logger.Info("Workflow · %s selected", item.ID())
	return a.startWorkflowRun(item.ID())
}

// startWorkflowRun loads the definition and runs it from its start node.
func (a *App) startWorkflowRun(id string) (tea.Model, tea.Cmd) {
	a.state = stateWorkflowRun
	a.workflowView = newWorkflowView(a, id)
	a.statusMsg = fmt.Sprintf("Loading %s…", id)
	return a, a.workflowView.Init()
}

func (a *App) returnToSelection() (tea.Model, tea.Cmd) {
	a.state = stateWorkflowSelect
	a.workflowView = nil
	a.statusMsg = "Select a workflow to run"
	return a, a.loadWorkflows()
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	var content string
	switch a.state {
	case stateWorkflowSelect:
		content = a.renderWorkflowSelection()
	case stateWorkflowRun:
		if a.workflowView != nil {
			content = a.workflowView.View()
		} else {
			content = "Loading workflow..."
		}
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ DISPUTEFLOW")
	body := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, width-4)).
		Render(content)
	sections := []string{header, body}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.statusMsg)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderWorkflowSelection() string {
	view := a.workflowMenu.View()
	if len(a.workflowChoices) == 0 {
		view = "No workflows available"
	}
	hint := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		MarginTop(1).
		Render("Enter → run workflow    q → quit")
	return lipgloss.JoinVertical(lipgloss.Left, view, hint)
}

func (a *App) renderLogPanel() string {
	lines := a.logger.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logger.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s", fileName))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

func humanizeWorkflowID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "Workflow"
	}
	replacer := strings.NewReplacer("-", " ", "_", " ", ".", " ")
	parts := strings.Fields(replacer.Replace(trimmed))
	if len(parts) == 0 {
		return "Workflow"
	}
	for i, part := range parts {
		parts[i] = titleCase(part)
	}
	return strings.Join(parts, " ")
}

func titleCase(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	lower := strings.ToLower(value)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
