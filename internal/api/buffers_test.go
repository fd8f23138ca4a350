package api

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func TestLogBufferRing(t *testing.T) {
	lb := NewLogBuffer(2)
	lb.Add("info", "one")
	lb.Add("warn", "two")
	lb.Add("error", "three")

	entries := lb.Entries(nil)
	if len(entries) != 2 || entries[0].Message != "two" || entries[1].Message != "three" {
		t.Fatalf("Unexpected entries %+v", entries)
	}
	if got := lb.Entries([]string{"ERROR"}); len(got) != 1 || got[0].Message != "three" {
		t.Errorf("Unexpected filtered entries %+v", got)
	}
	lb.Clear()
	if len(lb.Entries(nil)) != 0 {
		t.Error("Expected empty buffer")
	}
}

func TestLogHandler(t *testing.T) {
	lb := NewLogBuffer(10)
	logger := slog.New(NewLogHandler(lb, slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})))

	logger.Debug("hidden")
	logger.With("component", "bulk").WithGroup("req").Warn("Slow generation", "rows", 12)

	entries := lb.Entries(nil)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %+v", entries)
	}
	e := entries[0]
	if e.Level != "warn" {
		t.Errorf("Expected warn, got %s", e.Level)
	}
	if !strings.HasPrefix(e.Message, "Slow generation") ||
		!strings.Contains(e.Message, "component=bulk") ||
		!strings.Contains(e.Message, "req.rows=12") {
		t.Errorf("Unexpected message %q", e.Message)
	}
}

func TestJobBuffer(t *testing.T) {
	jb := NewJobBuffer(2)
	first := jb.Start("p1", "test", 1)
	second := jb.Start("p1", "labels", 4)
	jb.Finish(second, 512, errors.New("offline"))
	third := jb.Start("p2", "labels", 2)
	jb.Finish(third, 128, nil)

	jobs := jb.Entries()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != third || jobs[0].Status != JobCompleted || jobs[0].CompletedAt == nil {
		t.Errorf("Unexpected newest job %+v", jobs[0])
	}
	if jobs[1].ID != second || jobs[1].Status != JobFailed || jobs[1].Error != "offline" {
		t.Errorf("Unexpected failed job %+v", jobs[1])
	}
	for _, j := range jobs {
		if j.ID == first {
			t.Error("Oldest job must be evicted")
		}
	}
}
