package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/wonny/demandcast/internal/champion"
	"github.com/wonny/demandcast/internal/orchestrator"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	singleLine = "───────────────────────────────────────────────────────────"
	doubleLine = "═══════════════════════════════════════════════════════════"
)

// printHeader prints a titled block header
func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, doubleLine)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, singleLine)
}

func printSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "✅ %s\n", message)
}

func printError(w io.Writer, message string) {
	fmt.Fprintf(w, "❌ %s\n", message)
}

func printKeyValue(w io.Writer, key, value string) {
	fmt.Fprintf(w, "   %-14s : %s\n", key, value)
}

// printTable prints rows under a header; widths are per column
func printTable(w io.Writer, columns []string, widths []int, rows [][]string) {
	line := func(values []string) {
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = fmt.Sprintf("%-*s", widths[i], v)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}

	line(columns)
	total := 0
	for _, width := range widths {
		total += width + 2
	}
	fmt.Fprintln(w, strings.Repeat("─", total-2))
	for _, r := range rows {
		line(r)
	}
}

func printForecastSummary(w io.Writer, s *orchestrator.RunSummary) {
	printHeader(w, "Forecast run "+s.RunID)
	printKeyValue(w, "Project", s.Project)
	printKeyValue(w, "Started", s.StartedAt.Format("2006-01-02 15:04:05"))
	printKeyValue(w, "Duration", s.Duration.Round(time.Second).String())
	printKeyValue(w, "Records", fmt.Sprintf("%d", s.Records))
	fmt.Fprintln(w, singleLine)

	rows := make([][]string, 0, len(s.Results))
	for _, r := range s.Results {
		if r == nil {
			continue
		}
		status := "ok"
		if r.Err != nil {
			status = "failed"
		}
		skipped := "-"
		if len(r.SkippedRounds) > 0 {
			parts := make([]string, len(r.SkippedRounds))
			for i, n := range r.SkippedRounds {
				parts[i] = fmt.Sprintf("%d", n)
			}
			skipped = strings.Join(parts, ",")
		}
		rows = append(rows, []string{
			r.Algorithm, status,
			fmt.Sprintf("%d/%d", r.Rounds, r.PlannedRounds),
			skipped,
			fmt.Sprintf("%d", r.Records),
			r.Duration.Round(time.Second).String(),
		})
	}
	printTable(w, []string{"ALGORITHM", "STATUS", "ROUNDS", "SKIPPED", "RECORDS", "DURATION"},
		[]int{14, 8, 8, 8, 8, 10}, rows)

	for _, f := range s.Failures {
		printError(w, fmt.Sprintf("%s (round %d): %s", f.Algorithm, f.Round, f.Error))
	}
}

func printChampionSummary(w io.Writer, s *champion.Summary) {
	printHeader(w, "Champion alteration "+s.RunID)
	printKeyValue(w, "Methods", strings.Join(s.Methods, ", "))
	printKeyValue(w, "Items", fmt.Sprintf("%d", s.Items))
	printKeyValue(w, "Low volume", fmt.Sprintf("%d", s.Exempt))
	printKeyValue(w, "Hybrids", fmt.Sprintf("%d", s.Hybrids))
	printKeyValue(w, "Skipped", fmt.Sprintf("%d", s.Skipped))
	printKeyValue(w, "Warnings", fmt.Sprintf("%d", s.Warnings))
	printKeyValue(w, "Rows", fmt.Sprintf("%d", s.Rows))

	tags := make([]string, 0, len(s.Tags))
	for tag, n := range s.Tags {
		tags = append(tags, fmt.Sprintf("%s=%d", tag, n))
	}
	sort.Strings(tags)
	printKeyValue(w, "Tags", strings.Join(tags, " "))
}

// splitList parses a comma-separated flag value
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
