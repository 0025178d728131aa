package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalambet/cinetrait/internal/analysis"
	"github.com/kalambet/cinetrait/internal/profile"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

const barWidth = 20

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

// bar renders score in [0,1] as a fixed-width bar.
func bar(score float64) string {
	n := int(score*barWidth + 0.5)
	n = max(0, min(barWidth, n))
	return strings.Repeat("█", n) + strings.Repeat("·", barWidth-n)
}

func printProfile(w io.Writer, p profile.Profile) {
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "User:"), p.UserID)
	fmt.Fprintf(w, "%s %d movies, confidence %.2f\n", colorize(colorBold, "Based on:"), p.MoviesAnalyzed, p.Confidence)

	fmt.Fprintln(w, colorize(colorBold, "Traits:"))
	for _, t := range analysis.Traits {
		score := p.Traits.Get(t)
		line := fmt.Sprintf("  %-18s %s %.2f", t, bar(score), score)
		if t == p.DominantTrait.Trait {
			line = colorize(colorCyan, line+"  (dominant)")
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w, colorize(colorBold, "Values:"))
	for _, v := range analysis.Values {
		score := p.Values.Get(v)
		fmt.Fprintf(w, "  %-22s %s %.2f\n", v, bar(score), score)
	}

	top := make([]string, len(p.TopValues))
	for i, v := range p.TopValues {
		top[i] = string(v.Value)
	}
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Top values:"), strings.Join(top, ", "))
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Updated:"), p.UpdatedAt.Local().Format("2006-01-02 15:04"))
}

func printReadiness(w io.Writer, userID string, rd analysis.Readiness) {
	state := colorize(colorGreen, "ready")
	if !rd.Ready {
		state = colorize(colorYellow, fmt.Sprintf("needs %d more", rd.MinimumRequired-rd.ObservationCount))
	}
	fmt.Fprintf(w, "%s: %d/%d ratings, %s\n", userID, rd.ObservationCount, rd.MinimumRequired, state)
}
