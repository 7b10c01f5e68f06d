package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func plain() (*Formatter, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewFormatter(WithWriter(&buf), WithColor(false)), &buf
}

func TestNewFormatter(t *testing.T) {
	f := NewFormatter()
	if f.Format() != FormatText {
		t.Errorf("default format = %v, want text", f.Format())
	}
	if !f.colorEnabled {
		t.Error("expected color enabled by default")
	}

	f = NewFormatter(WithFormat(FormatJSON), WithColor(false))
	if f.Format() != FormatJSON || f.colorEnabled {
		t.Errorf("options not applied: %v %v", f.Format(), f.colorEnabled)
	}
}

func TestFormatter_StatusMessages(t *testing.T) {
	tests := []struct {
		name  string
		write func(f *Formatter) error
		want  string
	}{
		{"success", func(f *Formatter) error { return f.Success("Synced %d changes.", 2) }, "✓ Synced 2 changes.\n"},
		{"error", func(f *Formatter) error { return f.Error("failed") }, "✗ failed\n"},
		{"warning", func(f *Formatter) error { return f.Warning("offline") }, "⚠ offline\n"},
		{"info", func(f *Formatter) error { return f.Info("syncing") }, "ℹ syncing\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, buf := plain()
			if err := tt.write(f); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestFormatter_Colorize(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithColor(true))
	if got := f.Colorize("x", ColorRed); got != "\033[31mx\033[0m" {
		t.Errorf("Colorize() = %q", got)
	}

	f, _ = plain()
	if got := f.ActionStatus("failed"); got != "failed" {
		t.Errorf("ActionStatus() without color = %q", got)
	}
}

func TestFormatter_HeaderAndItem(t *testing.T) {
	f, buf := plain()
	f.Header("Sync")
	f.Item("Pending", "3")

	want := "Sync\n────\n  Pending: 3\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestFormatter_Table(t *testing.T) {
	f, buf := plain()
	err := f.Table([]string{"ID", "STATUS"}, [][]string{
		{"act-1", "pending"},
		{"act-10", "failed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	want := []string{
		"ID      STATUS",
		"------  -------",
		"act-1   pending",
		"act-10  failed",
	}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestFormatter_TableAlignsColoredCells(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithColor(true))
	f.Table([]string{"STATUS", "N"}, [][]string{{f.ActionStatus("failed"), "1"}})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if got := lines[2]; !strings.HasSuffix(got, "\033[0m  1") {
		t.Errorf("colored row = %q", got)
	}
	if visibleLen(lines[2]) != len("failed  1") {
		t.Errorf("visible width = %d", visibleLen(lines[2]))
	}
}

func TestFormatter_JSON(t *testing.T) {
	f, buf := plain()
	if err := f.JSON(map[string]int{"pending": 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil || got["pending"] != 2 {
		t.Errorf("JSON output = %q", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{" JSON ", FormatJSON, false},
		{"text", FormatText, false},
		{"", FormatText, false},
		{"yaml", FormatText, true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestAgo(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now.Add(-500 * time.Millisecond), "just now"},
		{now.Add(-42 * time.Second), "42s ago"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
	}
	for _, tt := range tests {
		if got := Ago(tt.at, now); got != tt.want {
			t.Errorf("Ago(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{4096 + 512, "4.5 KiB"},
		{3 << 20, "3.0 MiB"},
	}
	for _, tt := range tests {
		if got := Bytes(tt.in); got != tt.want {
			t.Errorf("Bytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
