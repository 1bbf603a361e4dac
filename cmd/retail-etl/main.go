package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/johndauphine/retail-etl/internal/config"
	"github.com/johndauphine/retail-etl/internal/logging"
	"github.com/johndauphine/retail-etl/internal/mapping"
	"github.com/johndauphine/retail-etl/internal/orchestrator"
	"github.com/johndauphine/retail-etl/internal/util"
	"github.com/johndauphine/retail-etl/internal/version"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logging.Error("%v", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    version.Name,
		Usage:   version.Description,
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to configuration file",
				EnvVars: []string{"RETAIL_ETL_CONFIG"},
			},
			stateFileFlag(),
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error (overrides logging.level)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format: text or json (overrides logging.format)",
			},
			&cli.BoolFlag{
				Name:  "output-json",
				Usage: "Print the command result as JSON on stdout",
			},
			&cli.StringFlag{
				Name:  "output-file",
				Usage: "Write the command result as JSON to this file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "tables",
				Usage:  "List source tables with their columns and row counts",
				Action: listTables,
			},
			{
				Name:   "health",
				Usage:  "Check source connectivity and local resources",
				Action: healthCheck,
			},
			{
				Name:   "preview",
				Usage:  "Show the first rows of a source table or of a recorded export",
				Action: previewTable,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "table",
						Aliases:  []string{"t"},
						Required: true,
						Usage:    "Source table, or expected table resolved through the mapping",
					},
					&cli.IntFlag{
						Name:    "rows",
						Aliases: []string{"n"},
						Value:   orchestrator.DefaultPreviewRows,
						Usage:   "Number of rows to show",
					},
					&cli.BoolFlag{
						Name:  "export",
						Usage: "Preview the recorded export of the expected table",
					},
					stateFileFlag(),
				},
			},
			{
				Name:  "mapping",
				Usage: "Create or check the table and column mapping",
				Subcommands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "Suggest a mapping from the source and save it",
						Action: initMapping,
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "force", Usage: "Replace an existing mapping file"},
						},
					},
					{
						Name:   "check",
						Usage:  "Validate the mapping against the expected model and the source",
						Action: checkMapping,
					},
				},
			},
			{
				Name:   "export",
				Usage:  "Export all mapped tables",
				Action: runExport,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Re-export tables that were already exported"},
					&cli.StringFlag{Name: "tables", Aliases: []string{"t"}, Usage: "Comma-separated expected tables to export"},
					stateFileFlag(),
				},
			},
			{
				Name:   "validate",
				Usage:  "Validate recorded export files",
				Action: validateExports,
			},
			{
				Name:  "history",
				Usage: "List all export runs, or view details of a specific run",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run",
						Usage: "Show details for a specific run ID",
					},
					stateFileFlag(),
				},
				Action: showHistory,
			},
		},
	}
}

func stateFileFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "state-file",
		Usage: "Path to the run state database (overrides export.state_file)",
	}
}

// getStateFile returns the state file flag, preferring the command over the global flag.
func getStateFile(c *cli.Context) string {
	if c.IsSet("state-file") {
		return c.String("state-file")
	}
	for _, ctx := range c.Lineage() {
		if ctx != nil && ctx.IsSet("state-file") {
			return ctx.String("state-file")
		}
	}
	return ""
}

// globalString reads a global flag from any command depth.
func globalString(c *cli.Context, name string) string {
	for _, ctx := range c.Lineage() {
		if ctx != nil && ctx.IsSet(name) {
			return ctx.String(name)
		}
	}
	return ""
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if p := globalString(c, "config"); p != "" {
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if sf := getStateFile(c); sf != "" {
		cfg.Export.StateFile = sf
	}
	if lvl := globalString(c, "log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if f := globalString(c, "log-format"); f != "" {
		cfg.Logging.Format = f
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(level)
	logging.SetFormat(cfg.Logging.Format)
	return cfg, nil
}

func newOrchestrator(c *cli.Context) (*orchestrator.Orchestrator, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	orch, err := orchestrator.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return orch, nil
}

// signalContext is cancelled on SIGINT or SIGTERM. Exports stop between tables.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted. Finishing the current table...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// outputJSON writes result to stdout and/or a file when requested.
func outputJSON(c *cli.Context, result any) error {
	toStdout := false
	outFile := ""
	for _, ctx := range c.Lineage() {
		if ctx == nil {
			continue
		}
		if ctx.Bool("output-json") {
			toStdout = true
		}
		if f := ctx.String("output-file"); f != "" && outFile == "" {
			outFile = f
		}
	}
	if !toStdout && outFile == "" {
		return nil
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	data = append(data, '\n')
	if toStdout {
		if _, err := os.Stdout.Write(data); err != nil {
			return err
		}
	}
	if outFile != "" {
		if err := os.WriteFile(outFile, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", outFile, err)
		}
	}
	return nil
}

func listTables(c *cli.Context) error {
	orch, err := newOrchestrator(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	tables, err := orch.ListTables(c.Context)
	if err != nil {
		return err
	}
	if err := outputJSON(c, tables); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tROWS\tCOLUMNS")
	for _, t := range tables {
		fmt.Fprintf(w, "%s\t%d\t%s\n", t.FullName(), t.RowCount, strings.Join(t.Columns, ", "))
	}
	return w.Flush()
}

func previewTable(c *cli.Context) error {
	orch, err := newOrchestrator(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	var p *orchestrator.Preview
	if c.Bool("export") {
		p, err = orch.PreviewExport(c.String("table"), c.Int("rows"))
	} else {
		p, err = orch.PreviewSource(c.Context, c.String("table"), c.Int("rows"))
	}
	if err != nil {
		return err
	}
	if err := outputJSON(c, p); err != nil {
		return err
	}
	return orchestrator.ShowPreview(p)
}

func healthCheck(c *cli.Context) error {
	orch, err := newOrchestrator(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	res, err := orch.HealthCheck(c.Context)
	if err != nil {
		return err
	}
	if err := outputJSON(c, res); err != nil {
		return err
	}
	if res.SourceConnected {
		logging.Info("Source %s: connected in %d ms, %d tables", res.SourceType, res.SourceLatencyMs, res.SourceTableCount)
	}
	if res.SourceError != "" {
		logging.Error("Source %s: %s", res.SourceType, res.SourceError)
	}
	logging.Info("Free disk: %d MB, available memory: %d MB", res.FreeDiskMB, res.AvailableMemoryMB)
	if !res.Healthy {
		return fmt.Errorf("health check failed")
	}
	return nil
}

func initMapping(c *cli.Context) error {
	orch, err := newOrchestrator(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	m, err := orch.InitMapping(c.Context, c.Bool("force"))
	if err != nil {
		return err
	}
	return outputJSON(c, m)
}

func checkMapping(c *cli.Context) error {
	orch, err := newOrchestrator(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	problems, err := orch.CheckMapping(c.Context)
	for _, p := range problems {
		if p.Severity == mapping.SeverityError {
			logging.Error("%s", p)
		} else {
			logging.Warn("%s", p)
		}
	}
	if err != nil {
		return err
	}
	if mapping.HasErrors(problems) {
		return fmt.Errorf("mapping has errors")
	}
	logging.Info("Mapping OK (%d warnings)", len(problems))
	return nil
}

func runExport(c *cli.Context) error {
	orch, err := newOrchestrator(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	ctx, cancel := signalContext()
	defer cancel()

	res, err := orch.Run(ctx, orchestrator.RunOptions{
		Force:  c.Bool("force"),
		Tables: util.SplitCSV(c.String("tables")),
	})
	if err != nil {
		return err
	}
	if err := outputJSON(c, res); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("export interrupted")
	}
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d of %d tables failed: %s", len(res.Failed), len(res.Tables), strings.Join(res.Failed, ", "))
	}
	return nil
}

func validateExports(c *cli.Context) error {
	orch, err := newOrchestrator(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	results, verr := orch.ValidateExports(c.Context)
	if err := outputJSON(c, results); err != nil {
		return err
	}
	return verr
}

func showHistory(c *cli.Context) error {
	orch, err := newOrchestrator(c)
	if err != nil {
		return err
	}
	defer orch.Close()

	// If --run flag is provided, show details for that specific run
	if runID := c.String("run"); runID != "" {
		return orch.ShowRunDetails(runID)
	}
	return orch.ShowHistory()
}
