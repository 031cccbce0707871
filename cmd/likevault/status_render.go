package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"likevault/internal/daemon"
	"likevault/internal/quota"
	"likevault/internal/store"
	"likevault/internal/workflow"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

// diskWarnRatio is the share of the budget above which usage renders as a
// warning.
const diskWarnRatio = 0.9

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func daemonLines(status daemon.Status, now time.Time, colorize bool) []string {
	var lines []string
	if status.Running {
		detail := fmt.Sprintf("running (pid %d", status.PID)
		if !status.StartedAt.IsZero() {
			detail += ", started " + humanize.RelTime(status.StartedAt, now, "ago", "from now")
		}
		detail += ")"
		lines = append(lines, renderStatusLine("Processing", statusOK, detail, colorize))
	} else {
		lines = append(lines, renderStatusLine("Processing", statusWarn, fmt.Sprintf("paused (pid %d)", status.PID), colorize))
	}

	switch pass := status.LastPass; {
	case pass == nil:
		lines = append(lines, renderStatusLine("Last fetch", statusInfo, "no fetch yet", colorize))
	case pass.Error != "":
		lines = append(lines, renderStatusLine("Last fetch", statusError,
			fmt.Sprintf("%s: %s", humanize.RelTime(pass.StartedAt, now, "ago", "from now"), pass.Error), colorize))
	default:
		lines = append(lines, renderStatusLine("Last fetch", statusOK,
			fmt.Sprintf("%s: %d fetched, %d new, %d enqueued",
				humanize.RelTime(pass.StartedAt, now, "ago", "from now"), pass.Fetched, pass.New, pass.Enqueued), colorize))
	}

	if !status.NextFetch.IsZero() {
		lines = append(lines, renderStatusLine("Next fetch", statusInfo, humanize.RelTime(status.NextFetch, now, "ago", "from now"), colorize))
	}

	alertKind := statusInfo
	if status.AlertsDropped > 0 {
		alertKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Alerts", alertKind,
		fmt.Sprintf("%d sent, %d dropped", status.AlertsSent, status.AlertsDropped), colorize))
	return lines
}

func diskLines(usage quota.Usage, colorize bool) []string {
	kind := statusOK
	detail := humanize.IBytes(uint64(max(usage.Used, 0)))
	if usage.Budget > 0 {
		ratio := float64(usage.Used+usage.Reserved) / float64(usage.Budget)
		if ratio >= diskWarnRatio {
			kind = statusWarn
		}
		detail = fmt.Sprintf("%s / %s (%.0f%%)", detail, humanize.IBytes(uint64(usage.Budget)), ratio*100)
	}
	lines := []string{renderStatusLine("Usage", kind, detail, colorize)}
	if usage.Reserved > 0 {
		lines = append(lines, renderStatusLine("Reserved", statusInfo, humanize.IBytes(uint64(usage.Reserved)), colorize))
	}
	if usage.FileCap > 0 {
		lines = append(lines, renderStatusLine("File cap", statusInfo, humanize.IBytes(uint64(usage.FileCap)), colorize))
	}
	return lines
}

func workerLines(summary workflow.StatusSummary, colorize bool) []string {
	kind := statusInfo
	if summary.LastError != "" {
		kind = statusWarn
	}
	detail := fmt.Sprintf("%d/%d busy, %d processed, %d failed", summary.Active, summary.Workers, summary.Processed, summary.Failed)
	lines := []string{renderStatusLine("Workers", kind, detail, colorize)}
	if summary.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, summary.LastError, colorize))
	}
	return lines
}

func buildQueueRows(summary workflow.StatusSummary) [][]string {
	rows := make([][]string, 0, len(workflow.Kinds()))
	for _, kind := range workflow.Kinds() {
		count := summary.QueueCounts[kind]
		if count == 0 {
			continue
		}
		rows = append(rows, []string{string(kind), humanize.Comma(int64(count))})
	}
	return rows
}

func buildItemRows(counts map[store.ItemStatus]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, status := range store.AllItemStatuses() {
		count, ok := counts[status]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{string(status), humanize.Comma(int64(count))})
	}
	return rows
}
