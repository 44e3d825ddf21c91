package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/leadscan/internal/config"
	"github.com/nao1215/leadscan/internal/database"
	"github.com/nao1215/leadscan/internal/model"
)

func historyLead(doc, owner string, withContact bool) *model.EnrichedLead {
	l := model.NewEnrichedLead(model.RawListingRecord{
		DocumentNumber: doc,
		SaleDate:       "2024-04-02",
		RawAddress:     "711 W NORWOOD CT, SAN ANTONIO, TX 78212",
	})
	l.Address = model.NormalizedAddress{Street: "711 W NORWOOD CT", City: "SAN ANTONIO", State: "TX", Zip: "78212"}
	l.Transition(model.StateAddressNormalized)
	l.Fail(model.StageGeocode, model.StateGeocodeFailed, model.ErrNotFound)
	if owner == "" {
		l.Fail(model.StageOwner, model.StateOwnerFailed, model.ErrNotFound)
		l.Transition(model.StateSkippedNoOwner)
		l.Finish()
		return l
	}
	l.Owner = &model.OwnerRecord{OwnerName: owner}
	l.Transition(model.StateOwnerResolved)
	if withContact {
		l.Contact = &model.ContactRecord{PhoneNumbers: []string{"(210) 555-0100"}, MatchConfidence: 0.5, Fallback: true, NeedsReview: true}
		l.Transition(model.StateContactResolved)
	} else {
		l.Fail(model.StageContact, model.StateContactFailed, model.ErrChallenged)
	}
	l.Finish()
	return l
}

func seedHistoryDB(t *testing.T) (*database.LeadDB, int64) {
	t.Helper()

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	leads := []*model.EnrichedLead{
		historyLead("20240012345", "LOPEZ MARIA G", true),
		historyLead("20240012346", "", false),
		historyLead("20240012347", "NGUYEN T", false),
	}
	summary := model.NewRunSummary(leads)
	summary.StartedAt = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	summary.FinishedAt = summary.StartedAt.Add(2 * time.Minute)
	summary.Strategy = "direct"

	id, err := db.SaveRunResult(context.Background(), summary, leads, nil)
	if err != nil {
		t.Fatal(err)
	}
	return db, id
}

func TestShowHistory(t *testing.T) {
	t.Parallel()

	t.Run("runs table", func(t *testing.T) {
		t.Parallel()

		db, _ := seedHistoryDB(t)
		var buf bytes.Buffer
		if err := showHistory(context.Background(), db, historyOptions{limit: 20}, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := buf.String()
		for _, want := range []string{"Strategy", "direct", database.RunCompleted, "--run <id>"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("runs json", func(t *testing.T) {
		t.Parallel()

		db, id := seedHistoryDB(t)
		var buf bytes.Buffer
		if err := showHistory(context.Background(), db, historyOptions{json: true}, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var views []runView
		if err := json.Unmarshal(buf.Bytes(), &views); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
		}
		if len(views) != 1 || views[0].ID != id || views[0].Summary == nil || views[0].Summary.Acquired != 3 {
			t.Errorf("unexpected runs %+v", views)
		}
	})

	t.Run("empty database", func(t *testing.T) {
		t.Parallel()

		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()

		var buf bytes.Buffer
		if err := showHistory(context.Background(), db, historyOptions{}, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No runs found") {
			t.Errorf("unexpected output: %s", buf.String())
		}
	})

	t.Run("leads of a run", func(t *testing.T) {
		t.Parallel()

		db, id := seedHistoryDB(t)
		var buf bytes.Buffer
		if err := showHistory(context.Background(), db, historyOptions{runID: id, markdown: true}, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := buf.String()
		for _, want := range []string{"# Leadscan Run Report", "20240012345", "20240012346", "20240012347"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q", want)
			}
		}
	})

	t.Run("filtered stored leads", func(t *testing.T) {
		t.Parallel()

		db, _ := seedHistoryDB(t)
		var buf bytes.Buffer
		o := historyOptions{leads: true, withContact: true, needsReview: true, json: true}
		if err := showHistory(context.Background(), db, o, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var r struct {
			Summary model.RunSummary      `json:"summary"`
			Leads   []*model.EnrichedLead `json:"leads"`
		}
		if err := json.Unmarshal(buf.Bytes(), &r); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(r.Leads) != 1 || r.Leads[0].Record.DocumentNumber != "20240012345" {
			t.Errorf("unexpected leads %+v", r.Leads)
		}
		if r.Summary.NeedsReview != 1 {
			t.Errorf("summary should be computed from the listed leads: %+v", r.Summary)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		t.Parallel()

		db, _ := seedHistoryDB(t)
		err := showHistory(context.Background(), db, historyOptions{runID: 999}, &bytes.Buffer{})
		if err == nil || !strings.Contains(err.Error(), "run 999 not found") {
			t.Errorf("expected not found error, got %v", err)
		}
	})
}

func TestParseHistoryFlags(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		cmd := NewHistoryCmd()
		if err := cmd.ParseFlags(nil); err != nil {
			t.Fatal(err)
		}
		o, err := parseHistoryFlags(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if o.limit != 20 || o.runID != 0 || o.json || o.markdown {
			t.Errorf("unexpected defaults %+v", o)
		}
	})

	t.Run("conflicting formats", func(t *testing.T) {
		t.Parallel()

		cmd := NewHistoryCmd()
		if err := cmd.ParseFlags([]string{"--json", "--markdown"}); err != nil {
			t.Fatal(err)
		}
		if _, err := parseHistoryFlags(cmd); !errors.Is(err, config.ErrConflictingReportFormats) {
			t.Errorf("expected ErrConflictingReportFormats, got %v", err)
		}
	})

	t.Run("run and filters", func(t *testing.T) {
		t.Parallel()

		cmd := NewHistoryCmd()
		if err := cmd.ParseFlags([]string{"-r", "12", "--with-contact", "-l", "5", "--db-dir", "/tmp/leads"}); err != nil {
			t.Fatal(err)
		}
		o, err := parseHistoryFlags(cmd)
		if err != nil {
			t.Fatal(err)
		}
		want := historyOptions{limit: 5, runID: 12, withContact: true, dbDir: "/tmp/leads"}
		if o != want {
			t.Errorf("got %+v, want %+v", o, want)
		}
	})
}
