// Package workspace manages the runtime's on-disk working directory: the
// fixed subtree of logs, memory index, approval config, and cron state that
// every run persists to, plus the atomic write-then-rename helpers used to
// mutate it safely while the process is live.
package workspace

import (
	"os"
	"path/filepath"
)

// Layout resolves the fixed set of paths a workspace root contains.
type Layout struct {
	Root string
}

// New returns a Layout rooted at dir. An empty dir defaults to ".agentrt".
func New(dir string) Layout {
	if dir == "" {
		dir = ".agentrt"
	}
	return Layout{Root: dir}
}

func (l Layout) join(parts ...string) string {
	return filepath.Join(append([]string{l.Root}, parts...)...)
}

// LogsDir holds per-turn model request payloads.
func (l Layout) LogsDir() string { return l.join("logs") }

// SessionLogsDir holds conversation/stats rollups.
func (l Layout) SessionLogsDir() string { return l.join("session_logs") }

// MemoryIndexFile is the text-memory index.
func (l Layout) MemoryIndexFile() string { return l.join(".memory", "index.json") }

// ApprovalDir holds the approval engine's persisted config.
func (l Layout) ApprovalDir() string { return l.join(".approval") }

// AllowlistFile persists the approval allowlist.
func (l Layout) AllowlistFile() string { return l.join(".approval", "allowlist.json") }

// PolicyFile persists the approval policy.
func (l Layout) PolicyFile() string { return l.join(".approval", "policy.json") }

// SafeBinsFile persists the approval safe-bin set.
func (l Layout) SafeBinsFile() string { return l.join(".approval", "safebins.json") }

// CronDir holds cron job definitions and run history.
func (l Layout) CronDir() string { return l.join(".cron") }

// CronJobsFile persists the cron job table.
func (l Layout) CronJobsFile() string { return l.join(".cron", "jobs.json") }

// CronRunsDir holds one newline-delimited JSON log per job.
func (l Layout) CronRunsDir() string { return l.join(".cron", "runs") }

// CronRunLogFile is the run log for a single job id.
func (l Layout) CronRunLogFile(jobID string) string {
	return filepath.Join(l.CronRunsDir(), jobID+".jsonl")
}

// CronRunsDBFile is the SQLite database backing the cron run-history store.
func (l Layout) CronRunsDBFile() string { return l.join(".cron", "runs.db") }

// DiagnosticRingFile is the optional persisted diagnostic ring buffer.
func (l Layout) DiagnosticRingFile() string { return l.join(".diagnostic", "ring.bin") }

// Ensure creates every workspace subdirectory, so later writes never need to
// check for ENOENT on a missing parent.
func (l Layout) Ensure() error {
	dirs := []string{
		l.Root,
		l.LogsDir(),
		l.SessionLogsDir(),
		filepath.Dir(l.MemoryIndexFile()),
		l.ApprovalDir(),
		l.CronDir(),
		l.CronRunsDir(),
		filepath.Dir(l.DiagnosticRingFile()),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
