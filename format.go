package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yuichietsu/retroarch-sync/internal/sync"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Quiet, format, args...)
}

// Size unit constants for human-readable formatting.
const (
	sizeKB = 1024
	sizeMB = 1024 * 1024
	sizeGB = 1024 * 1024 * 1024
)

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes int64) string {
	switch {
	case bytes >= sizeGB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(sizeGB))
	case bytes >= sizeMB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(sizeMB))
	case bytes >= sizeKB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(sizeKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatTime returns a compact timestamp relative to now.
func formatTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}

	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row. Trailing padding is trimmed.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

var reportHeaders = []string{"CATALOG", "DIR", "POLICY", "NEW", "UPD", "SAME", "DEL", "LOCK", "STUB", "M3U", "SIZE"}

// printDirReports writes one table row per directory report followed by a
// totals line.
func printDirReports(w io.Writer, dirs []sync.DirReport) {
	rows := make([][]string, 0, len(dirs))

	var (
		totals sync.Counts
		bytes  int64
	)

	for i := range dirs {
		d := &dirs[i]
		totals.Add(d.Counts)
		bytes += d.Bytes + d.DependencyBytes

		rows = append(rows, []string{
			d.Catalog, d.Dir, d.Policy,
			strconv.Itoa(d.New), strconv.Itoa(d.Updated), strconv.Itoa(d.Same),
			strconv.Itoa(d.Deleted), strconv.Itoa(d.Locked), strconv.Itoa(d.Stubs),
			strconv.Itoa(d.Playlists), formatSize(d.Bytes + d.DependencyBytes),
		})
	}

	printTable(w, reportHeaders, rows)
	fmt.Fprintf(w, "\n%d new, %d updated, %d same, %d deleted, %d locked (%s selected)\n",
		totals.New, totals.Updated, totals.Same, totals.Deleted, totals.Locked, formatSize(bytes))
}

// printActions writes every recorded action grouped by directory.
func printActions(w io.Writer, dirs []sync.DirReport) {
	for i := range dirs {
		d := &dirs[i]
		if len(d.Actions) == 0 {
			continue
		}

		fmt.Fprintf(w, "\n%s/%s:\n", d.Catalog, d.Dir)

		for _, a := range d.Actions {
			if a.DestKey != "" && a.DestKey != a.Key {
				fmt.Fprintf(w, "  %-8s %s -> %s\n", a.Kind, a.Key, a.DestKey)
				continue
			}

			fmt.Fprintf(w, "  %-8s %s\n", a.Kind, a.Key)
		}
	}
}

// printRunReport writes the summary of one run. Actions are listed when
// withActions is set.
func printRunReport(w io.Writer, rep *sync.RunReport, withActions bool) {
	if rep.DryRun {
		fmt.Fprintln(w, "Dry run: no changes were made.")
	}

	printDirReports(w, rep.Dirs)

	if withActions {
		printActions(w, rep.Dirs)
	}
}
