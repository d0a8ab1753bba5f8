package audit

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// ShowHistory writes a one-line-per-entry styled summary to w.
func ShowHistory(w io.Writer, entries []Entry) {
	fmt.Fprintln(w, headerStyle.Render("ID        DIR     FILE                     SIZE       STATUS"))
	for _, e := range entries {
		status := successStyle.Render("ok")
		if !e.Success {
			status = failureStyle.Render("failed")
		}
		fmt.Fprintf(w, "%-9s %-7s %-24s %-10s %s\n",
			shortID(e.ID), e.Direction, truncate(e.FileName, 24), formatBytes(e.FileSize), status)
	}
}

// ShowDetail writes a styled full-detail view of a single entry to w.
func ShowDetail(w io.Writer, e Entry) {
	fmt.Fprintln(w, headerStyle.Render("Transfer "+e.ID))
	fmt.Fprintf(w, "  direction : %s\n", e.Direction)
	fmt.Fprintf(w, "  file      : %s\n", e.FileName)
	fmt.Fprintf(w, "  hash      : %s\n", e.FileHash)
	fmt.Fprintf(w, "  size      : %s\n", formatBytes(e.FileSize))
	fmt.Fprintf(w, "  peer      : %s\n", e.PeerID)
	fmt.Fprintf(w, "  started   : %s\n", dimStyle.Render(e.StartedAt.Format("2006-01-02 15:04:05")))
	fmt.Fprintf(w, "  ended     : %s\n", dimStyle.Render(e.EndedAt.Format("2006-01-02 15:04:05")))
	if e.Success {
		fmt.Fprintln(w, "  status    : "+successStyle.Render("ok"))
	} else {
		fmt.Fprintln(w, "  status    : "+failureStyle.Render(e.Error))
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
