package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/hamed0406/subcheck/internal/domain"
)

func TestWriteReport_GroupedAndStats(t *testing.T) {
	color.NoColor = true
	out := domain.RunOutcome{
		Results: []domain.ProbeResult{
			{Host: "www.example.com", Status: domain.StatusUp},
			{Host: "api.example.com", Status: domain.StatusDown, Reason: "dns=NXDOMAIN"},
			{Host: "a.b.example.com", Status: domain.StatusUnknown},
		},
		Completion: domain.CompletionStopped,
	}
	var buf bytes.Buffer
	writeReport(&buf, out, "example.com", 1500*time.Millisecond, false)
	got := buf.String()

	for _, want := range []string{
		"www (1)\n  [UP] www.example.com\n",
		"root level (1)\n  [DOWN] api.example.com dns=NXDOMAIN\n",
		"multi level (1)\n  [?] a.b.example.com\n",
		"Total: 3  Up: 1  Down: 1  Unknown: 1  Live: 33.3%  (1.5s)",
		"stopped by user",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("report missing %q:\n%s", want, got)
		}
	}
}

func TestWriteReport_FlatKeepsOrder(t *testing.T) {
	color.NoColor = true
	out := domain.RunOutcome{
		Results: []domain.ProbeResult{
			{Host: "b.test", Status: domain.StatusUp},
			{Host: "a.test", Status: domain.StatusUp},
		},
		Completion: domain.CompletionCompleted,
	}
	var buf bytes.Buffer
	writeReport(&buf, out, "", time.Second, false)
	got := buf.String()
	if strings.Index(got, "b.test") > strings.Index(got, "a.test") {
		t.Fatalf("input order not kept:\n%s", got)
	}
	if strings.Contains(got, "stopped by user") {
		t.Fatalf("completed run should not mention stop:\n%s", got)
	}
}

func TestWriteReport_SkippedRunMarksEveryHostUnknown(t *testing.T) {
	color.NoColor = true
	out := skippedOutcome([]string{"www.example.com", "api.example.com", "a.b.example.com"})
	if s := out.Summary(); s.Unknown != 3 || s.Up != 0 || s.Down != 0 {
		t.Fatalf("every host should be unknown: %+v", s)
	}

	var buf bytes.Buffer
	writeReport(&buf, out, "example.com", 0, true)
	got := buf.String()
	for _, want := range []string{
		"www (1)\n  [?] www.example.com\n",
		"root level (1)\n  [?] api.example.com\n",
		"multi level (1)\n  [?] a.b.example.com\n",
		"Total: 3  availability check skipped",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("report missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Live:") || strings.Contains(got, "stopped by user") {
		t.Fatalf("skipped run should not print probe stats:\n%s", got)
	}
}

func TestReadCandidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.txt")
	body := "# comment\nfile1.test\n\nfile2.test, file3.test\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := readCandidates([]string{"arg1.test,arg2.test"}, path, nil)
	if err != nil {
		t.Fatalf("readCandidates: %v", err)
	}
	want := []string{"arg1.test", "arg2.test", "file1.test", "file2.test", "file3.test"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("got %v want %v", got, want)
	}

	if _, err := readCandidates(nil, filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
