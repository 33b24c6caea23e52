// Package health reports whether deeppomo's backing services are usable.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Status represents dependency status
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
	StatusDisabled
)

var (
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#7ec699")) // sage green
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#d4a054")) // amber
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#d48a8a")) // dusty rose
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e")) // mid gray
)

// Symbol returns the symbol for a status
func (s Status) Symbol() string {
	switch s {
	case StatusOK:
		return "✓"
	case StatusWarning:
		return "○"
	case StatusError:
		return "✗"
	case StatusDisabled:
		return "·"
	default:
		return "?"
	}
}

// ColorSymbol returns the symbol styled for a terminal.
func (s Status) ColorSymbol() string {
	switch s {
	case StatusOK:
		return okStyle.Render(s.Symbol())
	case StatusWarning:
		return warningStyle.Render(s.Symbol())
	case StatusError:
		return errorStyle.Render(s.Symbol())
	case StatusDisabled:
		return disabledStyle.Render(s.Symbol())
	default:
		return s.Symbol()
	}
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the status by name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Check represents a health check result
type Check struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Fix     string `json:"fix,omitempty"`
}

// Report contains all health check results
type Report struct {
	Status Status  `json:"status"`
	Checks []Check `json:"checks"`
}

// Healthy reports whether no check failed. Warnings and disabled optional
// services do not count as failures.
func (r *Report) Healthy() bool {
	return r.Status != StatusError
}

// Pinger is anything that can prove it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker runs the dependency checks
type Checker struct {
	database Pinger
	driver   string
	schema   func(ctx context.Context) error
	redis    Pinger
	timeout  time.Duration
}

// Option configures a Checker.
type Option func(*Checker)

// WithRedis adds a check of the token revocation store.
func WithRedis(p Pinger) Option {
	return func(c *Checker) { c.redis = p }
}

// WithSchemaCheck adds a check that the tables exist.
func WithSchemaCheck(probe func(ctx context.Context) error) Option {
	return func(c *Checker) { c.schema = probe }
}

// WithTimeout bounds each check.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) { c.timeout = d }
}

// NewChecker creates a checker for the database reachable through database.
func NewChecker(database Pinger, driver string, opts ...Option) *Checker {
	c := &Checker{database: database, driver: driver, timeout: 3 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run performs all health checks
func (c *Checker) Run(ctx context.Context) *Report {
	report := &Report{Checks: []Check{c.checkDatabase(ctx)}}
	if c.schema != nil && report.Checks[0].Status == StatusOK {
		report.Checks = append(report.Checks, c.checkSchema(ctx))
	}
	report.Checks = append(report.Checks, c.checkRedis(ctx))

	for _, check := range report.Checks {
		if check.Status == StatusError {
			report.Status = StatusError
			break
		}
		if check.Status == StatusWarning {
			report.Status = StatusWarning
		}
	}
	return report
}

func (c *Checker) checkDatabase(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.database.Ping(ctx); err != nil {
		return Check{
			Name:    "database",
			Status:  StatusError,
			Message: fmt.Sprintf("%s unreachable: %v", c.driver, err),
			Fix:     "check database.driver and database.dsn in the config file",
		}
	}
	return Check{Name: "database", Status: StatusOK, Message: c.driver}
}

func (c *Checker) checkSchema(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.schema(ctx); err != nil {
		return Check{
			Name:    "schema",
			Status:  StatusError,
			Message: "tables missing",
			Fix:     "deeppomo migrate",
		}
	}
	return Check{Name: "schema", Status: StatusOK, Message: "migrated"}
}

func (c *Checker) checkRedis(ctx context.Context) Check {
	if c.redis == nil {
		return Check{
			Name:    "redis",
			Status:  StatusDisabled,
			Message: "not configured (logout cannot revoke tokens)",
			Fix:     "set redis.url to enable token revocation",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.redis.Ping(ctx); err != nil {
		return Check{
			Name:    "redis",
			Status:  StatusWarning,
			Message: fmt.Sprintf("unreachable: %v", err),
			Fix:     "check redis.url in the config file",
		}
	}
	return Check{Name: "redis", Status: StatusOK, Message: "connected"}
}
