package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/leadscan/internal/config"
	"github.com/nao1215/leadscan/internal/database"
	"github.com/nao1215/leadscan/internal/listing"
	"github.com/nao1215/leadscan/internal/model"
	"github.com/nao1215/leadscan/internal/pipeline"
	"github.com/nao1215/leadscan/internal/report"
	"github.com/spf13/cobra"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func noEnv(string) (string, bool) { return "", false }

// newTestRunCmd returns a parsed run command with its own -c flag.
func newTestRunCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()

	cmd := NewRunCmd()
	cmd.Flags().StringP("config", "c", "", "")
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "leadscan.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.Local)
	file := writeConfig(t, `
portal:
  search_url: "https://records.example.test/search"
run:
  strategy: direct
  concurrency: 2
  db_dir: /from/file
`)

	t.Run("file values and default range", func(t *testing.T) {
		t.Parallel()

		cfg, err := buildConfig(newTestRunCmd(t, "-c", file), now, noEnv)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Strategy != config.StrategyDirect || cfg.Concurrency != 2 || cfg.DBDir != "/from/file" {
			t.Errorf("file values not applied: %+v", cfg)
		}
		if want := time.Date(2024, 3, 10, 0, 0, 0, 0, time.Local); !cfg.To.Equal(want) {
			t.Errorf("to = %v, want %v", cfg.To, want)
		}
		if want := time.Date(2024, 3, 3, 0, 0, 0, 0, time.Local); !cfg.From.Equal(want) {
			t.Errorf("from = %v, want %v", cfg.From, want)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid config: %v", err)
		}
	})

	t.Run("flags override file and environment", func(t *testing.T) {
		t.Parallel()

		env := func(k string) (string, bool) {
			switch k {
			case "LEADSCAN_CONCURRENCY":
				return "4", true
			case "LEADSCAN_PROXY":
				return "http://env-proxy:3128", true
			}
			return "", false
		}
		cmd := newTestRunCmd(t, "-c", file,
			"--from", "2024-02-01", "--to", "2024-02-05",
			"--strategy", "browser", "--concurrency", "6",
			"--proxy", "socks5://127.0.0.1:9050",
			"--db-dir", "/from/flag", "--no-db", "--no-contact-fallback",
			"--markdown", "-o", "out/report.md",
		)
		cfg, err := buildConfig(cmd, now, env)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got := struct {
			From, To                  string
			Strategy, Proxy, DBDir    string
			Concurrency               int
			SaveToDB, Fallback, MD    bool
			ReportFile                string
		}{
			cfg.From.Format(time.DateOnly), cfg.To.Format(time.DateOnly),
			cfg.Strategy, cfg.ProxyURL, cfg.DBDir,
			cfg.Concurrency,
			cfg.SaveToDB, cfg.AllowContactFallback, cfg.MarkdownReport,
			cfg.ReportFile,
		}
		want := got
		want.From, want.To = "2024-02-01", "2024-02-05"
		want.Strategy, want.Proxy, want.DBDir = "browser", "socks5://127.0.0.1:9050", "/from/flag"
		want.Concurrency = 6
		want.SaveToDB, want.Fallback, want.MD = false, false, true
		want.ReportFile = "out/report.md"
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("config mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Parallel()

		env := func(k string) (string, bool) {
			if k == "LEADSCAN_CONCURRENCY" {
				return "4", true
			}
			return "", false
		}
		cfg, err := buildConfig(newTestRunCmd(t, "-c", file), now, env)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Concurrency != 4 {
			t.Errorf("concurrency = %d, want 4", cfg.Concurrency)
		}
	})

	t.Run("only --to given", func(t *testing.T) {
		t.Parallel()

		cfg, err := buildConfig(newTestRunCmd(t, "-c", file, "--to", "2023-12-31"), now, noEnv)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := cfg.From.Format(time.DateOnly); got != "2023-12-24" {
			t.Errorf("from = %s, want 2023-12-24", got)
		}
	})

	t.Run("invalid date", func(t *testing.T) {
		t.Parallel()

		_, err := buildConfig(newTestRunCmd(t, "-c", file, "--from", "03/01/2024"), now, noEnv)
		if err == nil || !strings.Contains(err.Error(), "--from") {
			t.Errorf("expected --from error, got %v", err)
		}
	})

	t.Run("explicit config missing", func(t *testing.T) {
		t.Parallel()

		_, err := buildConfig(newTestRunCmd(t, "-c", filepath.Join(t.TempDir(), "nope.yaml")), now, noEnv)
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected not found error, got %v", err)
		}
	})
}

type acquirerFunc func(ctx context.Context, q listing.Query) listing.Result

func (f acquirerFunc) Acquire(ctx context.Context, q listing.Query) listing.Result { return f(ctx, q) }

type ownerFunc func(ctx context.Context, addr model.NormalizedAddress) (*model.OwnerRecord, error)

func (f ownerFunc) LocateOwner(ctx context.Context, addr model.NormalizedAddress) (*model.OwnerRecord, error) {
	return f(ctx, addr)
}

type contactFunc func(ctx context.Context, name string, addr model.NormalizedAddress) (*model.ContactRecord, error)

func (f contactFunc) LocateContacts(ctx context.Context, name string, addr model.NormalizedAddress) (*model.ContactRecord, error) {
	return f(ctx, name, addr)
}

func fakeComponents(acq pipeline.Acquirer) *components {
	return &components{
		acquirer: acq,
		owners: ownerFunc(func(_ context.Context, addr model.NormalizedAddress) (*model.OwnerRecord, error) {
			if strings.HasPrefix(addr.Street, "9 ") {
				return nil, model.ErrNotFound
			}
			return &model.OwnerRecord{OwnerName: "LOPEZ MARIA G"}, nil
		}),
		contacts: contactFunc(func(context.Context, string, model.NormalizedAddress) (*model.ContactRecord, error) {
			return &model.ContactRecord{
				PhoneNumbers:      []string{"(210) 555-0100"},
				MatchConfidence:   1,
				MatchedPersonName: "MARIA G LOPEZ",
			}, nil
		}),
	}
}

func testRunConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Sources.Portal.SearchURL = "https://records.example.test/search"
	cfg.From = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg.To = time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)
	cfg.DBDir = t.TempDir()
	cfg.JSONReport = true
	cfg.ReportFile = filepath.Join(t.TempDir(), "reports", "run.json")
	cfg.Concurrency = 2
	return cfg
}

func readReport(t *testing.T, path string) report.JSONReport {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var r report.JSONReport
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("parse report: %v", err)
	}
	return r
}

func TestRunLeads(t *testing.T) {
	t.Parallel()

	t.Run("enriches, saves and reports", func(t *testing.T) {
		t.Parallel()

		cfg := testRunConfig(t)
		acq := acquirerFunc(func(_ context.Context, q listing.Query) listing.Result {
			if !q.From.Equal(cfg.From) || !q.To.Equal(cfg.To) {
				t.Errorf("unexpected query %+v", q)
			}
			return listing.Result{
				Success:  true,
				Strategy: "direct",
				Records: []model.RawListingRecord{
					{DocumentNumber: "20240012345", SaleDate: "2024-04-02", RawAddress: "711 W NORWOOD CT, SAN ANTONIO, TX 78212"},
					{DocumentNumber: "20240012346", SaleDate: "2024-04-02", RawAddress: "9 ELM ST, SAN ANTONIO, TX 78201"},
				},
			}
		})

		if err := runLeads(context.Background(), cfg, fakeComponents(acq), discard); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		r := readReport(t, cfg.ReportFile)
		if r.Summary.Acquired != 2 || r.Summary.ContactsResolved != 1 || r.Summary.OwnerNotFound != 1 {
			t.Errorf("unexpected summary %+v", r.Summary)
		}

		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 1 || runs[0].Status != database.RunCompleted || runs[0].Strategy != "direct" {
			t.Fatalf("unexpected runs %+v", runs)
		}
		leads, err := db.ListLeads(context.Background(), database.LeadFilter{RunID: runs[0].ID})
		if err != nil {
			t.Fatal(err)
		}
		if len(leads) != 2 {
			t.Fatalf("stored %d leads, want 2", len(leads))
		}
		withContact, err := db.ListLeads(context.Background(), database.LeadFilter{WithContact: true})
		if err != nil {
			t.Fatal(err)
		}
		if len(withContact) != 1 || withContact[0].Record.DocumentNumber != "20240012345" {
			t.Errorf("unexpected leads with contact %+v", withContact)
		}
	})

	t.Run("acquisition failure is recorded and reported", func(t *testing.T) {
		t.Parallel()

		cfg := testRunConfig(t)
		acq := acquirerFunc(func(context.Context, listing.Query) listing.Result {
			return listing.Result{Diagnostics: []model.PageDiagnostics{
				{Strategy: "direct", Verdict: model.VerdictBlocked, Title: "Sign In", SignInPresent: true},
			}}
		})

		err := runLeads(context.Background(), cfg, fakeComponents(acq), discard)
		if !errors.Is(err, pipeline.ErrAcquisitionFailed) {
			t.Fatalf("expected ErrAcquisitionFailed, got %v", err)
		}

		r := readReport(t, cfg.ReportFile)
		if len(r.Summary.Diagnostics) != 1 || r.Summary.Diagnostics[0].Verdict != model.VerdictBlocked {
			t.Errorf("diagnostics missing from report: %+v", r.Summary)
		}

		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()
		runs, err := db.ListRuns(context.Background(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 1 || runs[0].Status != database.RunFailed {
			t.Errorf("expected failed run, got %+v", runs)
		}
	})

	t.Run("refuses concurrent runs", func(t *testing.T) {
		t.Parallel()

		cfg := testRunConfig(t)
		unlock, err := acquireRunLock(cfg.DBDir)
		if err != nil {
			t.Fatal(err)
		}
		defer unlock()

		acq := acquirerFunc(func(context.Context, listing.Query) listing.Result {
			t.Error("acquirer should not run while locked")
			return listing.Result{}
		})
		if err := runLeads(context.Background(), cfg, fakeComponents(acq), discard); !errors.Is(err, ErrRunInProgress) {
			t.Errorf("expected ErrRunInProgress, got %v", err)
		}
	})
}

func TestAcquireRunLock(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "data")
	unlock, err := acquireRunLock(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := acquireRunLock(dir); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}

	unlock()
	unlock2, err := acquireRunLock(dir)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	unlock2()
}

type recentMap map[string]bool

func (m recentMap) HasRecentLead(_ context.Context, doc string, _ time.Duration) (bool, error) {
	if doc == "broken" {
		return false, errors.New("db closed")
	}
	return m[doc], nil
}

func TestRecentFilter(t *testing.T) {
	t.Parallel()

	records := []model.RawListingRecord{{DocumentNumber: "a"}, {DocumentNumber: "b"}, {DocumentNumber: "broken"}}
	f := &recentFilter{
		next: acquirerFunc(func(context.Context, listing.Query) listing.Result {
			return listing.Result{Success: true, Records: records}
		}),
		db:     recentMap{"a": true},
		window: 24 * time.Hour,
		logger: discard,
	}

	res := f.Acquire(context.Background(), listing.Query{})
	var got []string
	for _, r := range res.Records {
		got = append(got, r.DocumentNumber)
	}
	if diff := cmp.Diff([]string{"b", "broken"}, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if !res.Success {
		t.Error("filtering should keep success")
	}
}

func TestLastStage(t *testing.T) {
	t.Parallel()

	l := model.NewEnrichedLead(model.RawListingRecord{DocumentNumber: "1"})
	l.Transition(model.StateAddressNormalized)
	if got := lastStage(l); got != model.StateAddressNormalized {
		t.Errorf("got %v", got)
	}
	l.Transition(model.StateSkippedNoOwner)
	l.Finish()
	if got := lastStage(l); got != model.StateSkippedNoOwner {
		t.Errorf("got %v", got)
	}
}

func TestNewReportWriter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"text", config.Config{}, "*report.TextWriter"},
		{"json", config.Config{JSONReport: true}, "*report.FullJSONWriter"},
		{"markdown", config.Config{MarkdownReport: true}, "*report.MarkdownWriter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := newReportWriter(&tt.cfg, io.Discard)
			var got string
			switch w.(type) {
			case *report.TextWriter:
				got = "*report.TextWriter"
			case *report.FullJSONWriter:
				got = "*report.FullJSONWriter"
			case *report.MarkdownWriter:
				got = "*report.MarkdownWriter"
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
