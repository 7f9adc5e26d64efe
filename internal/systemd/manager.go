// Package systemd inspects and controls systemd units through systemctl and
// journalctl.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hongminglow/svcmon/internal/logging"
	"github.com/hongminglow/svcmon/internal/models"
)

var (
	ErrInvalidAction = errors.New("invalid action")
	ErrInvalidName   = errors.New("invalid service name")
	ErrTimeout       = errors.New("command timed out")
)

const (
	queryTimeout   = 10 * time.Second
	controlTimeout = 30 * time.Second
	logsTimeout    = 15 * time.Second

	MinLogLines     = 1
	MaxLogLines     = 500
	DefaultLogLines = 50
)

// DefaultUnitDirs are scanned for *.service files.
var DefaultUnitDirs = []string{"/etc/systemd/system/", "/lib/systemd/system/", "/usr/lib/systemd/system/"}

var validActions = []string{"start", "stop", "restart", "reload", "enable", "disable", "status"}

var unitNamePattern = regexp.MustCompile(`^[A-Za-z0-9@:._\-]+$`)

// NormalizeName trims raw, appends ".service" when missing and rejects names
// that could be read as a flag or carry shell-unsafe characters.
func NormalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || strings.HasPrefix(name, "-") || !unitNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, raw)
	}
	if !strings.HasSuffix(name, ".service") {
		name += ".service"
	}
	return name, nil
}

// ValidAction reports whether action is accepted by Control.
func ValidAction(action string) bool {
	return slices.Contains(validActions, action)
}

// ControlResult is the outcome of a Control call.
type ControlResult struct {
	Success    bool
	Message    string
	ReturnCode int
}

// LogResult holds journal lines, or the stderr of a failed journalctl run.
type LogResult struct {
	Lines []string
	Error string
}

// Manager wraps systemctl and journalctl.
type Manager struct {
	runner   Runner
	unitDirs []string
	sudo     bool
	logger   logging.Logger
}

// NewManager builds a Manager scanning unitDirs (DefaultUnitDirs when empty).
// useSudo prefixes control and journal commands with sudo.
func NewManager(runner Runner, unitDirs []string, useSudo bool, logger logging.Logger) *Manager {
	if len(unitDirs) == 0 {
		unitDirs = DefaultUnitDirs
	}
	return &Manager{
		runner:   runner,
		unitDirs: unitDirs,
		sudo:     useSudo,
		logger:   logger.With("component", "systemd"),
	}
}

// ScanUnits lists every *.service file across the unit directories, sorted
// and de-duplicated. Missing directories are skipped.
func (m *Manager) ScanUnits() ([]string, error) {
	seen := map[string]struct{}{}
	for _, dir := range m.unitDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".service") {
				seen[e.Name()] = struct{}{}
			}
		}
	}
	units := make([]string, 0, len(seen))
	for name := range seen {
		units = append(units, name)
	}
	slices.Sort(units)
	return units, nil
}

// Exists asks systemctl whether a unit file named name is installed.
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := m.runner.Run(ctx, "systemctl", "list-unit-files", name)
	if err != nil {
		return false, err
	}
	return strings.Contains(res.Stdout, name), nil
}

// Status reports the state of name. Failures are folded into the returned
// ServiceInfo rather than returned as errors.
func (m *Manager) Status(ctx context.Context, name string) models.ServiceInfo {
	ok, err := m.Exists(ctx, name)
	switch {
	case errors.Is(err, ErrTimeout):
		return timeoutInfo(name)
	case err != nil:
		return errorInfo(name, "unknown", "Error: "+err.Error())
	case !ok:
		return models.ServiceInfo{
			Name:        name,
			Status:      "not-found",
			Active:      "unknown",
			Enabled:     "unknown",
			Description: "Service not found",
		}
	}

	showCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := m.runner.Run(showCtx, "systemctl", "show", name, "--no-page")
	switch {
	case errors.Is(err, ErrTimeout):
		return timeoutInfo(name)
	case err != nil:
		return errorInfo(name, "unknown", "Error: "+err.Error())
	case res.ExitCode != 0:
		return errorInfo(name, "error", "Failed to get service status")
	}

	props := parseProperties(res.Stdout)
	active := valueOr(props, "ActiveState", "unknown")
	sub := valueOr(props, "SubState", "unknown")
	return models.ServiceInfo{
		Name:        name,
		Status:      fmt.Sprintf("%s (%s)", active, sub),
		Active:      active,
		Enabled:     valueOr(props, "UnitFileState", "unknown"),
		Description: valueOr(props, "Description", "No description"),
		Loaded:      true,
	}
}

// Control runs `systemctl ACTION NAME`. An unknown unit or a failed command
// yields an unsuccessful result; only an invalid action is an error.
func (m *Manager) Control(ctx context.Context, name, action string) (ControlResult, error) {
	if !ValidAction(action) {
		return ControlResult{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	ok, err := m.Exists(ctx, name)
	switch {
	case errors.Is(err, ErrTimeout):
		return ControlResult{Message: "Operation timed out"}, nil
	case err != nil:
		return ControlResult{Message: "Error: " + err.Error()}, nil
	case !ok:
		return ControlResult{Message: fmt.Sprintf("Service %s not found", name)}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, controlTimeout)
	defer cancel()
	bin, args := m.command("systemctl", action, name)
	res, err := m.runner.Run(ctx, bin, args...)
	switch {
	case errors.Is(err, ErrTimeout):
		return ControlResult{Message: "Operation timed out"}, nil
	case err != nil:
		return ControlResult{Message: "Error: " + err.Error()}, nil
	}

	out := ControlResult{Success: res.ExitCode == 0, ReturnCode: res.ExitCode, Message: res.Stdout}
	if !out.Success {
		out.Message = res.Stderr
	}
	m.logger.Info(ctx, "service action", "service", name, "action", action, "exit_code", res.ExitCode)
	return out, nil
}

// Logs returns the last lines of the unit's journal.
func (m *Manager) Logs(ctx context.Context, name string, lines int) (LogResult, error) {
	if lines < MinLogLines || lines > MaxLogLines {
		return LogResult{}, fmt.Errorf("lines must be between %d and %d", MinLogLines, MaxLogLines)
	}

	ctx, cancel := context.WithTimeout(ctx, logsTimeout)
	defer cancel()
	bin, args := m.command("journalctl", "-u", name, "-n", strconv.Itoa(lines), "--no-pager")
	res, err := m.runner.Run(ctx, bin, args...)
	if err != nil {
		return LogResult{}, err
	}
	if res.ExitCode != 0 {
		return LogResult{Lines: []string{}, Error: res.Stderr}, nil
	}
	return LogResult{Lines: strings.Split(res.Stdout, "\n")}, nil
}

func (m *Manager) command(bin string, args ...string) (string, []string) {
	if !m.sudo {
		return bin, args
	}
	return "sudo", append([]string{bin}, args...)
}

func parseProperties(out string) map[string]string {
	props := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if ok {
			props[key] = value
		}
	}
	return props
}

func valueOr(props map[string]string, key, fallback string) string {
	if v, ok := props[key]; ok {
		return v
	}
	return fallback
}

func timeoutInfo(name string) models.ServiceInfo {
	return models.ServiceInfo{
		Name:        name,
		Status:      "timeout",
		Active:      "timeout",
		Enabled:     "unknown",
		Description: "Timeout while checking service",
	}
}

func errorInfo(name, enabled, description string) models.ServiceInfo {
	return models.ServiceInfo{
		Name:        name,
		Status:      "error",
		Active:      "error",
		Enabled:     enabled,
		Description: description,
	}
}

