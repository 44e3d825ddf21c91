package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nao1215/leadscan/internal/config"
	"github.com/nao1215/leadscan/internal/database"
	"github.com/nao1215/leadscan/internal/model"
	"github.com/nao1215/leadscan/internal/pipeline"
	"github.com/nao1215/leadscan/internal/report"
	"github.com/spf13/cobra"
)

// dateLayout is the format of --from and --to.
const dateLayout = time.DateOnly

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch notices for a date range and enrich them into leads",
		Long: `Run fetches foreclosure notices recorded in a date range and enriches
each one through four stages:

  1. normalize the property address
  2. geocode it (Census batch, then Nominatim one by one)
  3. look up the owner on the tax-assessor site
  4. find the owner's phone numbers and emails on the people-search site

A stage that fails is recorded on the lead and the lead moves on. Only a
run where no listing strategy could read the portal exits with an error.

Examples:
  # Last 7 days with the default settings
  leadscan run

  # A specific week, Markdown report to a file
  leadscan run --from 2024-03-01 --to 2024-03-07 --markdown -o report.md

  # Force the browser strategy through a proxy
  leadscan run --strategy browser --proxy socks5://127.0.0.1:9050

  # Skip notices enriched in the last 30 days
  leadscan run --skip-recent 720h`,
		Args: cobra.NoArgs,
		RunE: runRunCmd,
	}

	cmd.Flags().String("from", "", "First recorded date to fetch (YYYY-MM-DD, default: 7 days ago)")
	cmd.Flags().String("to", "", "Last recorded date to fetch (YYYY-MM-DD, default: today)")
	cmd.Flags().IntP("limit", "l", 0, "Maximum number of notices to request (0: portal default)")
	cmd.Flags().StringP("strategy", "s", config.DefaultStrategy,
		"Listing strategy: "+strings.Join(config.Strategies, ", "))

	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency, "Number of leads enriched in parallel")
	cmd.Flags().Duration("stage-timeout", config.DefaultStageTimeout, "Timeout for the owner and contact stages of one lead")
	cmd.Flags().String("proxy", "", "Proxy URL for every source (socks5://, http://)")
	cmd.Flags().String("user-agent", "", "User-Agent for every source")
	cmd.Flags().Bool("no-contact-fallback", false, "Do not accept low-confidence (0.5) contact matches")
	cmd.Flags().Bool("verify-email-mx", false, "Drop emails whose domain has no MX record")

	cmd.Flags().String("db-dir", "", "Database directory (default: XDG data directory)")
	cmd.Flags().Bool("no-db", false, "Do not save the run to the database")
	cmd.Flags().Duration("skip-recent", 0, "Skip notices already enriched within this window")

	cmd.Flags().BoolP("json", "j", false, "Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "", "Write report to specified file path (creates directories if needed)")

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd, time.Now(), os.LookupEnv)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(os.Stderr, cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newComponents(cfg, logger)
	if err != nil {
		return err
	}
	return runLeads(ctx, cfg, c, logger)
}

// buildConfig layers the config file, the environment and the flags.
// Flags only override the lower layers when set explicitly.
func buildConfig(cmd *cobra.Command, now time.Time, lookupEnv func(string) (string, bool)) (*config.Config, error) {
	cfg, err := loadBaseConfig(cmd, lookupEnv)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()

	if cfg.From, err = dateFlag(cmd, "from"); err != nil {
		return nil, err
	}
	if cfg.To, err = dateFlag(cmd, "to"); err != nil {
		return nil, err
	}
	defFrom, defTo := config.DefaultRange(now)
	if cfg.To.IsZero() {
		cfg.To = defTo
	}
	if cfg.From.IsZero() {
		cfg.From = defFrom
		if cfg.From.After(cfg.To) {
			cfg.From = cfg.To.Add(-config.DefaultLookback)
		}
	}

	if cfg.Limit, err = flags.GetInt("limit"); err != nil {
		return nil, err
	}
	if flags.Changed("strategy") {
		if cfg.Strategy, err = flags.GetString("strategy"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("concurrency") {
		if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("stage-timeout") {
		if cfg.StageTimeout, err = flags.GetDuration("stage-timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("proxy") {
		if cfg.ProxyURL, err = flags.GetString("proxy"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("user-agent") {
		if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
			return nil, err
		}
	}
	if noFallback, _ := flags.GetBool("no-contact-fallback"); noFallback {
		cfg.AllowContactFallback = false
	}
	if verifyMX, _ := flags.GetBool("verify-email-mx"); verifyMX {
		cfg.VerifyEmailMX = true
	}

	if flags.Changed("db-dir") {
		if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
			return nil, err
		}
	}
	if cfg.DBDir == "" {
		cfg.DBDir = config.XDGDataDir()
	}
	if noDB, _ := flags.GetBool("no-db"); noDB {
		cfg.SaveToDB = false
	}
	if cfg.SkipRecent, err = flags.GetDuration("skip-recent"); err != nil {
		return nil, err
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.LogJSON = getLogJSONFlag(cmd)
	return cfg, nil
}

// loadBaseConfig applies the config file and the environment to the
// defaults. If the user named a config file with -c it must exist;
// otherwise built-in layouts are used when no file is found.
func loadBaseConfig(cmd *cobra.Command, lookupEnv func(string) (string, bool)) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.ConfigFilePath = getConfigFlag(cmd)

	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cf, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		if err := cfg.ApplyFile(cf); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	if err := cfg.ApplyEnv(lookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// dateFlag parses a YYYY-MM-DD flag in local time. An empty flag is the
// zero time.
func dateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	s, err := cmd.Flags().GetString(name)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: expected YYYY-MM-DD", name, s)
	}
	return t, nil
}

// runLeads runs one enrichment pass and writes the report. The database,
// when enabled, gets a run row up front and each lead as it finishes, so an
// interrupted run keeps the leads it completed.
func runLeads(ctx context.Context, cfg *config.Config, c *components, logger *slog.Logger) (err error) {
	unlock, err := acquireRunLock(cfg.DBDir)
	if err != nil {
		return err
	}
	defer unlock()

	var (
		db    *database.LeadDB
		runID int64
	)
	if cfg.SaveToDB || cfg.SkipRecent > 0 {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
	}
	if cfg.SaveToDB {
		runID, err = db.StartRun(ctx, time.Now(), cfg.From, cfg.To)
		if err != nil {
			return err
		}
		logger.Info("run started", "run_id", runID, "db", db.Path())
	}

	acq := pipeline.Acquirer(c.acquirer)
	if cfg.SkipRecent > 0 {
		acq = &recentFilter{next: acq, db: db, window: cfg.SkipRecent, logger: logger}
	}

	var finished atomic.Int64
	hook := func(lead *model.EnrichedLead) {
		n := finished.Add(1)
		logger.Info("lead finished",
			"n", n,
			"document", lead.Record.DocumentNumber,
			"state", lastStage(lead),
			"failures", len(lead.Failures),
		)
		if db == nil || !cfg.SaveToDB {
			return
		}
		// Persist even when the run is being cancelled.
		if err := db.SaveLead(context.WithoutCancel(ctx), runID, lead); err != nil {
			logger.Error("failed to save lead", "document", lead.Record.DocumentNumber, "error", err)
		}
	}

	runner := pipeline.NewRunner(acq, c.geocoder, c.owners, c.contacts,
		pipeline.WithRunnerLogger(logger),
		pipeline.WithWorkers(cfg.Concurrency),
		pipeline.WithWorkerMemory(uint64(cfg.WorkerMemoryMB)<<20),
		pipeline.WithLookupTimeout(cfg.StageTimeout),
		pipeline.WithLeadHook(hook),
	)

	logger.Info("starting run",
		"from", cfg.From.Format(dateLayout),
		"to", cfg.To.Format(dateLayout),
		"strategy", cfg.Strategy,
		"concurrency", cfg.Concurrency,
	)
	result, runErr := runner.Run(ctx, c.query(cfg))

	if cfg.SaveToDB {
		if err := db.FinishRun(context.WithoutCancel(ctx), runID, result.Summary, runErr); err != nil {
			logger.Error("failed to finish run", "run_id", runID, "error", err)
		}
	}

	if err := outputReport(cfg, result.Report()); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to write report: %w", err))
	}
	return runErr
}

// lastStage names the state before DONE, which is what an operator cares
// about when watching progress.
func lastStage(l *model.EnrichedLead) model.State {
	if n := len(l.History); n >= 2 && l.State == model.StateDone {
		return l.History[n-2]
	}
	return l.State
}

// outputReport writes the report in the configured format to stdout or
// cfg.ReportFile.
func outputReport(cfg *config.Config, r *model.RunReport) error {
	var output io.Writer = os.Stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports hold personal contact data.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	_, err := newReportWriter(cfg, output).Write(r)
	return err
}

func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewTextWriter(output)
	}
}
