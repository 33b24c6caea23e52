// Package banner prints the startup banner of the server.
package banner

import (
	"fmt"
	"io"
	"strings"

	"github.com/deeppomo/deeppomo/internal/health"
)

// Logo is the ASCII art logo for deeppomo
const Logo = `
   ██████╗ ███████╗███████╗██████╗ ██████╗  ██████╗ ███╗   ███╗ ██████╗
   ██╔══██╗██╔════╝██╔════╝██╔══██╗██╔══██╗██╔═══██╗████╗ ████║██╔═══██╗
   ██║  ██║█████╗  █████╗  ██████╔╝██████╔╝██║   ██║██╔████╔██║██║   ██║
   ██║  ██║██╔══╝  ██╔══╝  ██╔═══╝ ██╔═══╝ ██║   ██║██║╚██╔╝██║██║   ██║
   ██████╔╝███████╗███████╗██║     ██║     ╚██████╔╝██║ ╚═╝ ██║╚██████╔╝
   ╚═════╝ ╚══════╝╚══════╝╚═╝     ╚═╝      ╚═════╝ ╚═╝     ╚═╝ ╚═════╝
`

// Tagline is the project tagline
const Tagline = "Task trees and focused sessions"

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// PrintWithVersion prints the banner with version info
func PrintWithVersion(w io.Writer, version string) {
	fmt.Fprint(w, Logo)
	fmt.Fprintf(w, "   %s\n", Tagline)
	fmt.Fprintf(w, "   v%s\n\n", version)
}

// StartupWithHealth prints the server banner followed by the dependency
// checks in one line each.
func StartupWithHealth(w io.Writer, version, addr string, report *health.Report) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "DEEPPOMO v%s │ %s\n", version, addr)
	fmt.Fprintln(w, rule)

	var notes []string
	for _, c := range report.Checks {
		fmt.Fprintf(w, "%s %-10s %s\n", c.Status.Symbol(), c.Name, c.Message)
		if c.Status != health.StatusOK && c.Fix != "" {
			notes = append(notes, fmt.Sprintf("  * %s: %s", c.Name, c.Fix))
		}
	}
	if len(notes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Join(notes, "\n"))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Listening... (Ctrl+C to stop)")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
}
