package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/chazu/kworder/pkg/inspect"
)

var (
	offsetColor = color.New(color.FgCyan)
	nameColor   = color.New(color.FgGreen, color.Bold)
	errorColor  = color.New(color.FgRed)
	callColor   = color.New(color.FgYellow)
)

func applyColorMode(mode string, tty bool) error {
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !tty
	default:
		return fmt.Errorf("unknown color mode %q (want auto, on or off)", mode)
	}
	return nil
}

// siteReport is the serialized form of one call site.
type siteReport struct {
	Procedure string   `yaml:"procedure"`
	Offset    int      `yaml:"offset"`
	Names     []string `yaml:"names"`
	Error     string   `yaml:"error,omitempty"`
}

func newSiteReport(procedure string, r inspect.SiteResult) siteReport {
	rep := siteReport{Procedure: procedure, Offset: r.Offset, Names: r.Names}
	if r.Err != nil {
		rep.Error = r.Err.Error()
		rep.Names = nil
	}
	return rep
}

func writeReports(w io.Writer, format string, reports []siteReport) error {
	switch format {
	case "text":
		for _, r := range reports {
			writeReportText(w, r)
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func writeReportText(w io.Writer, r siteReport) {
	fmt.Fprintf(w, "%s %s  ", r.Procedure, offsetColor.Sprintf("@%04d", r.Offset))
	if r.Error != "" {
		fmt.Fprintln(w, errorColor.Sprint(r.Error))
		return
	}
	if len(r.Names) == 0 {
		fmt.Fprintln(w, "(no keywords)")
		return
	}
	colored := make([]string, len(r.Names))
	for i, n := range r.Names {
		colored[i] = nameColor.Sprint(n)
	}
	fmt.Fprintln(w, strings.Join(colored, ", "))
}

// highlightListing colors the call lines of a disassembly.
func highlightListing(listing string) string {
	lines := strings.Split(listing, "\n")
	for i, line := range lines {
		if strings.Contains(line, "CALL_FUNCTION") {
			lines[i] = callColor.Sprint(line)
		}
	}
	return strings.Join(lines, "\n")
}
