package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"vj-go/internal/database"
	"vj-go/internal/model"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// formatDuration renders seconds as m:ss, or h:mm:ss for an hour or more.
func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-:--"
	}
	s := int(seconds)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// formatRecording renders one line of the recordings listing. labels maps tag
// IDs to their display labels; unknown IDs are shown as-is.
func formatRecording(e *model.Encounter, labels map[string]string, now time.Time) string {
	when := e.CreatedDate
	if t, err := time.Parse(time.RFC3339, e.CreatedDate); err == nil {
		when = humanize.RelTime(t, now, "ago", "from now")
	}

	tags := make([]string, 0, len(e.Tags))
	for _, id := range e.Tags {
		if l, ok := labels[id]; ok {
			id = l
		}
		tags = append(tags, id)
	}

	state := "local"
	if e.DropboxFileID != "" {
		state = "synced"
	}
	if e.IsTemporary {
		state = "draft"
	}

	line := fmt.Sprintf("%s  %-30s  %7s  %-14s  %-6s", e.ID, e.Title, formatDuration(e.Duration), when, state)
	if len(tags) > 0 {
		line += "  " + dimStyle.Render(strings.Join(tags, ", "))
	}
	return line
}

// formatRun renders one line of the sync history.
func formatRun(r *model.SyncRun, now time.Time) string {
	status := r.Status
	switch r.Status {
	case database.RunSuccess:
		status = successStyle.Render(status)
	case database.RunError:
		status = errorStyle.Render(status)
	}

	line := fmt.Sprintf("#%d  %-16s  %-14s  %-7s  %d/%d",
		r.ID, r.RunID, humanize.RelTime(r.StartedAt, now, "ago", "from now"), status, r.Completed, r.Total)
	if r.Failed > 0 {
		line += warnStyle.Render(fmt.Sprintf("  %d failed", r.Failed))
	}
	if r.Error != "" {
		line += "  " + r.Error
	}
	return line
}
