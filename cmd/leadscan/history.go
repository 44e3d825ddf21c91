package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nao1215/leadscan/internal/config"
	"github.com/nao1215/leadscan/internal/database"
	"github.com/nao1215/leadscan/internal/model"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs and stored leads",
		Long: `History shows runs saved in the lead database.

Without flags it lists the most recent runs. With --run it prints the leads
stored by that run using the same report formats as 'leadscan run'. With
--leads it prints every stored lead, latest enrichment per notice.

Examples:
  # Last 20 runs
  leadscan history

  # Leads of run 12 as Markdown
  leadscan history --run 12 --markdown

  # Every stored lead with contact details that needs review
  leadscan history --leads --with-contact --needs-review`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "l", 20, "Maximum number of runs or leads to show (0: all)")
	cmd.Flags().Int64P("run", "r", 0, "Show the leads stored by this run ID")
	cmd.Flags().Bool("leads", false, "Show stored leads instead of runs")
	cmd.Flags().Bool("with-contact", false, "Only leads with contact details")
	cmd.Flags().Bool("needs-review", false, "Only leads whose contact match needs review")
	cmd.Flags().String("db-dir", "", "Database directory (default: XDG data directory)")
	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown (leads only)")

	return cmd
}

type historyOptions struct {
	limit       int
	runID       int64
	leads       bool
	withContact bool
	needsReview bool
	dbDir       string
	json        bool
	markdown    bool
}

func parseHistoryFlags(cmd *cobra.Command) (historyOptions, error) {
	var (
		o   historyOptions
		err error
	)
	flags := cmd.Flags()
	if o.limit, err = flags.GetInt("limit"); err != nil {
		return o, err
	}
	if o.runID, err = flags.GetInt64("run"); err != nil {
		return o, err
	}
	if o.leads, err = flags.GetBool("leads"); err != nil {
		return o, err
	}
	if o.withContact, err = flags.GetBool("with-contact"); err != nil {
		return o, err
	}
	if o.needsReview, err = flags.GetBool("needs-review"); err != nil {
		return o, err
	}
	if o.dbDir, err = flags.GetString("db-dir"); err != nil {
		return o, err
	}
	if o.json, err = flags.GetBool("json"); err != nil {
		return o, err
	}
	if o.markdown, err = flags.GetBool("markdown"); err != nil {
		return o, err
	}
	if o.json && o.markdown {
		return o, config.ErrConflictingReportFormats
	}
	return o, nil
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	o, err := parseHistoryFlags(cmd)
	if err != nil {
		return err
	}
	if o.dbDir == "" {
		base, err := loadBaseConfig(cmd, os.LookupEnv)
		if err != nil {
			return err
		}
		o.dbDir = base.DBDir
	}
	if o.dbDir == "" {
		o.dbDir = config.XDGDataDir()
	}

	db, err := database.Open(o.dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return showHistory(cmd.Context(), db, o, cmd.OutOrStdout())
}

func showHistory(ctx context.Context, db *database.LeadDB, o historyOptions, w io.Writer) error {
	if o.runID > 0 || o.leads {
		return showLeads(ctx, db, o, w)
	}

	runs, err := db.ListRuns(ctx, o.limit)
	if err != nil {
		return err
	}
	if o.json {
		views := make([]runView, len(runs))
		for i, r := range runs {
			views[i] = newRunView(r)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found in the database.")
		fmt.Fprintln(w, "\nUse 'leadscan run' to fetch and enrich notices.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Started", "Range", "Strategy", "Status", "Acquired", "Owners", "Contacts", "Review"})
	for _, r := range runs {
		row := table.Row{r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.From + " → " + r.To, orDash(r.Strategy), r.Status}
		if s := r.Summary; s != nil {
			row = append(row, s.Acquired, s.OwnersResolved, s.ContactsResolved, s.NeedsReview)
		} else {
			row = append(row, "-", "-", "-", "-")
		}
		t.AppendRow(row)
	}
	t.Render()

	fmt.Fprintln(w, "\nUse 'leadscan history --run <id>' to see the leads of a run.")
	return nil
}

func showLeads(ctx context.Context, db *database.LeadDB, o historyOptions, w io.Writer) error {
	summary := &model.RunSummary{}
	if o.runID > 0 {
		run, err := db.GetRun(ctx, o.runID)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %d not found", o.runID)
		}
		if run.Summary != nil {
			summary = run.Summary
		}
	}

	leads, err := db.ListLeads(ctx, database.LeadFilter{
		RunID:       o.runID,
		WithContact: o.withContact,
		NeedsReview: o.needsReview,
		Limit:       o.limit,
	})
	if err != nil {
		return err
	}
	if o.runID == 0 {
		summary = model.NewRunSummary(leads)
	}

	cfg := &config.Config{JSONReport: o.json, MarkdownReport: o.markdown}
	_, err = newReportWriter(cfg, w).Write(&model.RunReport{Summary: summary, Leads: leads})
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// runView is the JSON form of a stored run.
type runView struct {
	ID         int64             `json:"id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	From       string            `json:"from"`
	To         string            `json:"to"`
	Strategy   string            `json:"strategy,omitempty"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	Summary    *model.RunSummary `json:"summary,omitempty"`
}

func newRunView(r database.RunMetadata) runView {
	v := runView{
		ID:        r.ID,
		StartedAt: r.StartedAt,
		From:      r.From,
		To:        r.To,
		Strategy:  r.Strategy,
		Status:    r.Status,
		Error:     r.Error,
		Summary:   r.Summary,
	}
	if !r.FinishedAt.IsZero() {
		v.FinishedAt = &r.FinishedAt
	}
	return v
}
