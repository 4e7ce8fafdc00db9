package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRetention_Select(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	archives := []ArchiveInfo{
		{Path: "/a/5.nsa", CreatedAt: now.Add(-1 * time.Hour)},
		{Path: "/a/4.nsa", CreatedAt: now.Add(-12 * time.Hour)},
		{Path: "/a/3.nsa", CreatedAt: now.Add(-48 * time.Hour)},
		{Path: "/a/2.nsa", CreatedAt: now.Add(-72 * time.Hour)},
		{Path: "/a/1.nsa", CreatedAt: now.Add(-720 * time.Hour)},
	}

	tests := []struct {
		name     string
		r        Retention
		wantKeep int
	}{
		{name: "no limits", r: Retention{}, wantKeep: 5},
		{name: "count", r: Retention{Keep: 3}, wantKeep: 3},
		{name: "count above total", r: Retention{Keep: 10}, wantKeep: 5},
		{name: "age", r: Retention{MaxAge: 24 * time.Hour}, wantKeep: 2},
		{name: "either limit keeps", r: Retention{Keep: 1, MaxAge: 50 * time.Hour}, wantKeep: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keep, drop := tt.r.Select(archives, now)
			if len(keep) != tt.wantKeep {
				t.Errorf("kept %d, want %d", len(keep), tt.wantKeep)
			}
			if len(keep)+len(drop) != len(archives) {
				t.Errorf("kept %d + dropped %d != %d", len(keep), len(drop), len(archives))
			}
			if len(keep) > 0 && keep[0].Path != "/a/5.nsa" {
				t.Errorf("first kept = %s, want newest", keep[0].Path)
			}
		})
	}
}

func TestListArchives(t *testing.T) {
	ctx := context.Background()
	ledger, plan := seededLedger(t)
	dir := t.TempDir()

	older := ArchivePath(dir, plan.ID, time.Now().Add(-time.Hour))
	newer := ArchivePath(dir, plan.ID, time.Now())
	for _, p := range []string{older, newer} {
		if _, err := Export(ctx, ledger, plan.ID, p, true); err != nil {
			t.Fatalf("Export() error = %v", err)
		}
	}
	// Unrelated files are ignored.
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0600)
	os.Mkdir(filepath.Join(dir, "netsweep-dir.nsa"), 0700)

	archives, err := ListArchives(dir)
	if err != nil {
		t.Fatalf("ListArchives() error = %v", err)
	}
	if len(archives) != 2 {
		t.Fatalf("got %d archives, want 2", len(archives))
	}
	for _, a := range archives {
		if a.Version != FormatV2 || a.PlanID != plan.ID || a.Size == 0 {
			t.Errorf("archive info = %+v", a)
		}
	}
	if archives[0].CreatedAt.Before(archives[1].CreatedAt) {
		t.Error("archives should be sorted newest first")
	}

	missing, err := ListArchives(filepath.Join(dir, "nope"))
	if err != nil || len(missing) != 0 {
		t.Errorf("ListArchives(missing) = %v, %v", missing, err)
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	ledger, plan := seededLedger(t)
	dir := t.TempDir()

	for i := range 4 {
		p := ArchivePath(dir, plan.ID, time.Now().Add(time.Duration(-i)*time.Minute))
		if _, err := Export(ctx, ledger, plan.ID, p, true); err != nil {
			t.Fatalf("Export() error = %v", err)
		}
	}

	deleted, err := Prune(dir, Retention{Keep: 2}, time.Now())
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if len(deleted) != 2 {
		t.Errorf("Prune() deleted %d, want 2", len(deleted))
	}
	left, _ := ListArchives(dir)
	if len(left) != 2 {
		t.Errorf("%d archives left, want 2", len(left))
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "90m", want: 90 * time.Minute},
		{in: "30d", want: 30 * 24 * time.Hour},
		{in: "2w", want: 14 * 24 * time.Hour},
		{in: "d", wantErr: true},
		{in: "5y", wantErr: true},
		{in: "-3d", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
