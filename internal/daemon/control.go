package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/monitor"
)

const (
	// PIDFileName holds the daemon process id inside the data directory.
	PIDFileName = "pingwatch.pid"
	// StatusFileName holds the latest daemon status inside the data directory.
	StatusFileName = "status.json"
	// OutputFileName receives the detached daemon's stdout and stderr.
	OutputFileName = "daemon.out"
)

// ErrNotRunning is returned when no live daemon owns the data directory.
var ErrNotRunning = errors.New("daemon is not running")

// CheckRunning checks if the daemon is already running.
func CheckRunning(dataDir string) (bool, int) {
	data, err := os.ReadFile(filepath.Join(dataDir, PIDFileName))
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false, 0
	}

	if !processAlive(pid) {
		return false, 0
	}

	return true, pid
}

// SendStop asks the running daemon to shut down.
func SendStop(dataDir string) error {
	running, pid := CheckRunning(dataDir)
	if !running {
		return ErrNotRunning
	}

	if err := terminate(pid); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	return nil
}

// StartBackground re-executes exe with args as a detached process whose
// output goes to daemon.out in dataDir. It returns the child's PID.
func StartBackground(exe string, args []string, dataDir string) (int, error) {
	out, err := os.OpenFile(filepath.Join(dataDir, OutputFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open daemon output file: %w", err)
	}
	defer out.Close()

	procAttr := &os.ProcAttr{
		Env:   os.Environ(),
		Files: []*os.File{nil, out, out},
		Sys:   detachAttr(),
	}

	proc, err := os.StartProcess(exe, append([]string{exe}, args...), procAttr)
	if err != nil {
		return 0, fmt.Errorf("failed to start daemon process: %w", err)
	}
	pid := proc.Pid

	// Detach from parent
	if err := proc.Release(); err != nil {
		return pid, fmt.Errorf("failed to release daemon process: %w", err)
	}

	return pid, nil
}

// StatusFile holds serialized daemon status.
type StatusFile struct {
	Running         bool                `json:"running"`
	PID             int                 `json:"pid"`
	StartTime       time.Time           `json:"start_time"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Hosts           []string            `json:"hosts"`
	IntervalSeconds int                 `json:"interval_seconds"`
	WebPort         int                 `json:"web_port,omitempty"`
	LastCycle       *model.CycleSummary `json:"last_cycle,omitempty"`
	Task            *monitor.TaskStatus `json:"task,omitempty"`
}

// Uptime returns how long the daemon has been running as of the last update.
func (sf *StatusFile) Uptime() time.Duration {
	if sf.StartTime.IsZero() {
		return 0
	}
	return sf.UpdatedAt.Sub(sf.StartTime).Truncate(time.Second)
}

// WriteStatusFile writes the daemon status to a file. The file is replaced
// atomically so readers never see a partial write.
func WriteStatusFile(dataDir string, sf *StatusFile) error {
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(dataDir, StatusFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadStatusFile reads the daemon status from a file.
func ReadStatusFile(dataDir string) (*StatusFile, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, StatusFileName))
	if err != nil {
		return nil, err
	}

	var sf StatusFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse status file: %w", err)
	}

	return &sf, nil
}

func writePIDFile(dataDir string) error {
	pid := os.Getpid()
	return os.WriteFile(filepath.Join(dataDir, PIDFileName), []byte(strconv.Itoa(pid)), 0644)
}

func removePIDFile(dataDir string) {
	os.Remove(filepath.Join(dataDir, PIDFileName))
}
