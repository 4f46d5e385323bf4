// cmd/flowctl/main.go
//
// flowctl runs a single traversal from the command line, validates workflow
// files and imports them into PostgreSQL.
//
// Usage:
//
//	flowctl [run] -workflow card-dispute -current review -decision approve
//	flowctl run -file ./dispute.hcl -set amount=250
//	flowctl list
//	flowctl validate workflows/*.yaml
//	flowctl import workflows/*.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/disputeflow/internal/config"
	"github.com/kingrea/disputeflow/internal/logging"
	"github.com/kingrea/disputeflow/internal/workflow"
	"github.com/kingrea/disputeflow/internal/workflow/engine"
	"github.com/kingrea/disputeflow/internal/workflow/store"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	actionStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7B801"))
	closedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4CAF50"))
	stalledStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

func main() {
	args := os.Args[1:]
	command := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case "run":
		err = runCommand(ctx, args)
	case "list":
		err = listCommand(ctx, args)
	case "validate":
		code := validateCommand(args)
		stop()
		os.Exit(code)
	case "import":
		err = importCommand(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q (expected run, list, validate or import)\n", command)
		os.Exit(2)
	}
	if err != nil {
		die("%v", err)
	}
}

func runCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "path to disputeflow.yaml")
	workflowID := fs.String("workflow", "", "stored workflow id (defaults to workflows.default)")
	file := fs.String("file", "", "run a workflow file directly instead of a stored workflow")
	dir := fs.String("dir", "", "override the workflow directory")
	decision := fs.String("decision", "", "decision to route at the next decision node")
	current := fs.String("current", "", "id of the node the case is currently at")
	force := fs.String("force", "", "start from this node regardless of position")
	payloadFile := fs.String("payload-file", "", "YAML/JSON file with payload fields")
	strict := fs.Bool("strict", false, "stop on unrecognized decisions instead of routing them as approvals")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	sets := keyValueFlag{}
	fs.Var(&sets, "set", "payload field (key=value, repeatable; values are parsed as YAML scalars)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dir != "" {
		cfg.Workflows.Dir = *dir
		cfg.Database.URL = ""
	}

	def, err := resolveDefinition(ctx, cfg, *workflowID, *file)
	if err != nil {
		return err
	}
	payload, err := buildPayload(*payloadFile, sets, controlFlags{
		Decision:      *decision,
		CurrentNodeID: *current,
		ForceNextNode: *force,
	})
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Path)
	if err != nil {
		return err
	}
	defer logger.Close()

	eng := engine.New(
		engine.WithLogger(logger),
		engine.WithStrictDecisions(cfg.Engine.StrictDecisions || *strict),
	)
	result, err := eng.Run(ctx, engine.Request{Nodes: def.Nodes, Edges: def.Edges, Payload: payload})
	if err != nil {
		return fmt.Errorf("run %s: %w", def.ID, err)
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printResult(def, result)
	return nil
}

func resolveDefinition(ctx context.Context, cfg config.Config, workflowID, file string) (workflow.Definition, error) {
	if path := strings.TrimSpace(file); path != "" {
		return workflow.LoadDefinitionFile(path)
	}
	id := strings.TrimSpace(workflowID)
	if id == "" {
		id = cfg.Workflows.Default
	}
	if id == "" {
		return workflow.Definition{}, fmt.Errorf("-workflow or -file is required (or set workflows.default)")
	}
	st, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		return workflow.Definition{}, err
	}
	defer closeStore()
	return st.Load(ctx, id)
}

func listCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "path to disputeflow.yaml")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	st, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	ids, err := st.List(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func importCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "path to disputeflow.yaml")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: flowctl import FILE...")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if !cfg.UsesDatabase() {
		return fmt.Errorf("import requires database.url or DISPUTEFLOW_DATABASE_URL")
	}
	pg, err := store.NewPGStore(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pg.Close()
	for _, path := range fs.Args() {
		def, err := workflow.LoadDefinitionFile(path)
		if err != nil {
			return err
		}
		if err := store.ValidateID(def.ID); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := pg.Save(ctx, def); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Printf("Imported %s (%d nodes, %d edges)\n", def.ID, len(def.Nodes), len(def.Edges))
	}
	return nil
}

func printResult(def workflow.Definition, result engine.Result) {
	name := def.Name
	if name == "" {
		name = def.ID
	}
	fmt.Println(headingStyle.Render(fmt.Sprintf("%s · run %s", name, result.RunID)))
	for _, entry := range result.Log {
		fmt.Printf("%3d  %-14s %s\n", entry.Step, entry.Event, entry.Message)
	}
	node := result.NextNode.ID
	if result.NextNode.Label != "" {
		node = fmt.Sprintf("%s (%s)", node, result.NextNode.Label)
	}
	fmt.Printf("\nStopped at %s · %s · %d step(s)\n", node, stopLabel(result.Stop), result.Steps)
	if result.Stop == engine.StopAction {
		fmt.Println(mutedStyle.Render(fmt.Sprintf("Resume with: flowctl -workflow %s -current %s -decision <decision>", def.ID, result.NextNode.ID)))
	}
}

func stopLabel(stop engine.StopReason) string {
	switch stop {
	case engine.StopAction:
		return actionStyle.Render("awaiting action")
	case engine.StopEnd:
		return closedStyle.Render("closed")
	default:
		return stalledStyle.Render(string(stop))
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
