package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"swevalidator/internal/store"
	"swevalidator/internal/tactile/swebench"
	"swevalidator/internal/validator"
)

var (
	colorSuccess = lipgloss.Color("#8BC34A") // Lime Green
	colorError   = lipgloss.Color("#e53935") // Red
	colorWarning = lipgloss.Color("#FFC107") // Yellow
	colorInfo    = lipgloss.Color("#2196F3") // Blue
	colorMuted   = lipgloss.Color("#6a737d")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorInfo)
	passStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorError)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarning)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	detailStyle  = lipgloss.NewStyle().PaddingLeft(6)
	sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// console renders validator output.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func newConsole(w io.Writer) *console {
	return &console{w: w}
}

func (c *console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, s)
}

func (c *console) runStarted(runID string, instanceIDs []string) {
	c.println(fmt.Sprintf("Loaded %d data point(s)", len(instanceIDs)))
	c.println("Instance IDs: " + strings.Join(instanceIDs, ", "))
	c.println(titleStyle.Render(fmt.Sprintf("Starting evaluation for %d instance(s)...", len(instanceIDs))))
	c.println("Run ID: " + runID)
}

func (c *console) progress(e swebench.ReportEvent) {
	switch e.Kind {
	case swebench.InstanceStarted:
		c.println(mutedStyle.Render("  ▸ " + e.InstanceID + " started"))
	case swebench.ReportWritten:
		c.println(mutedStyle.Render("  ▸ " + e.InstanceID + " report written"))
	}
}

// validationError renders a failure that stopped the run before evaluation.
func (c *console) validationError(err *validator.ValidationError) {
	c.println(failStyle.Render("✗ Error: ") + err.Detail())
}

func (c *console) summary(s *validator.Summary) {
	c.println("")
	c.println(sectionStyle.Render("Results"))
	for _, o := range s.Outcomes {
		if o.Success() {
			c.println("  " + passStyle.Render("✓ PASS") + " " + o.Source)
			continue
		}
		c.println("  " + failStyle.Render("✗ FAIL") + " " + o.Source + " " + warnStyle.Render("["+string(o.Err.Type)+"]"))
		c.println(detailStyle.Render(o.Err.Detail()))
	}

	passed, failed := len(s.Passed()), len(s.Failed())
	line := fmt.Sprintf("Summary: %d passed, %d failed", passed, failed)
	if failed > 0 {
		counts := s.CountByType()
		var parts []string
		for _, t := range s.ErrorTypes() {
			parts = append(parts, fmt.Sprintf("%s: %d", t, counts[t]))
		}
		line += " (" + strings.Join(parts, ", ") + ")"
	}

	c.println("")
	if s.OK() {
		c.println(passStyle.Render("✓ " + line))
	} else {
		c.println(failStyle.Render("✗ " + line))
	}
	c.println(mutedStyle.Render("Run ID: " + s.RunID))
}

func (c *console) runs(runs []store.RunRecord) {
	if len(runs) == 0 {
		c.println(mutedStyle.Render("No validation runs recorded."))
		return
	}
	c.println(sectionStyle.Render("Recent runs"))
	for _, r := range runs {
		status := passStyle.Render("PASS")
		if r.Failed > 0 || r.Instances == 0 {
			status = failStyle.Render("FAIL")
		}
		c.println(fmt.Sprintf("  %s %s  %d/%d passed  %s  %s",
			status, r.RunID, r.Passed, r.Instances,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			mutedStyle.Render(r.Duration().Round(time.Second).String())))
	}
}

func (c *console) outcomes(runID string, outcomes []store.OutcomeRecord) {
	c.println(sectionStyle.Render("Run " + runID))
	for _, o := range outcomes {
		if o.Success {
			c.println("  " + passStyle.Render("✓ PASS") + " " + o.Source + " " + mutedStyle.Render(o.InstanceID))
			continue
		}
		c.println("  " + failStyle.Render("✗ FAIL") + " " + o.Source + " " + warnStyle.Render("["+o.ErrorType+"]"))
		c.println(detailStyle.Render(o.Message))
	}
}

// renderFatal formats an error that aborted the command.
func renderFatal(err error) string {
	return failStyle.Render("✗ Error: ") + err.Error()
}
