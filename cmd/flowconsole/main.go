// cmd/flowconsole/main.go
//
// flowconsole is the interactive operator console. It lists stored workflows,
// runs one and lets the operator submit decisions at each action node.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/disputeflow/internal/config"
	"github.com/kingrea/disputeflow/internal/logging"
	"github.com/kingrea/disputeflow/internal/tui"
	"github.com/kingrea/disputeflow/internal/workflow/engine"
	"github.com/kingrea/disputeflow/internal/workflow/store"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to disputeflow.yaml")
	workflowID := flag.String("workflow", "", "open this workflow directly (defaults to workflows.default)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		die("load config: %v", err)
	}
	// The console owns the terminal, so an unset log path goes to a file.
	logPath := cfg.Logging.Path
	if logPath == "" {
		logPath = "flowconsole.log"
	}
	logger, err := logging.New(logPath)
	if err != nil {
		die("open log: %v", err)
	}
	defer logger.Close()

	st, closeStore, err := store.Open(context.Background(), cfg)
	if err != nil {
		die("open store: %v", err)
	}
	defer closeStore()

	initial := *workflowID
	if initial == "" {
		initial = cfg.Workflows.Default
	}
	app, err := tui.NewApp(st,
		tui.WithEngine(engine.New(
			engine.WithLogger(logger),
			engine.WithStrictDecisions(cfg.Engine.StrictDecisions),
		)),
		tui.WithLogger(logger),
		tui.WithWorkflow(initial),
	)
	if err != nil {
		die("start console: %v", err)
	}
	logger.Info("Console opened")

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		closeStore()
		os.Exit(1)
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
