package approval

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InvalidPattern is returned when a caller supplies an unparseable glob
// pattern to addAllowlist/updateAllowlist.
type InvalidPattern struct{ Pattern string }

func (e *InvalidPattern) Error() string {
	return fmt.Sprintf("approval: invalid allowlist pattern %q", e.Pattern)
}

// InvalidConfig is returned by importConfig when the supplied config is
// structurally unusable (e.g. a policy with an unknown SecurityMode).
type InvalidConfig struct{ Reason string }

func (e *InvalidConfig) Error() string {
	return fmt.Sprintf("approval: invalid config: %s", e.Reason)
}

var validSecurityModes = map[SecurityMode]bool{
	SecurityDeny: true, SecurityAllowlist: true, SecurityFull: true,
}
var validAskModes = map[AskMode]bool{
	AskOff: true, AskOnMiss: true, AskAlways: true,
}

// skillsCommandPrefixes are interpreter binaries auto-allowed when
// AutoAllowSkills is set, so trusted skill scripts run without prompting.
var skillsCommandPrefixes = []string{"/usr/bin/env", "python3", "node", "bash"}

// Engine evaluates candidate shell commands against a Policy, a safe-bin
// list, and a glob allowlist, and owns the mutable state backing those
// three. All access is guarded by mu so it can be shared across
// concurrently-running sessions.
type Engine struct {
	mu        sync.RWMutex
	allowlist []AllowlistEntry
	safeBins  map[string]bool
	policy    Policy
}

// New constructs an Engine with the given starting config. An empty Config
// gets DefaultPolicy() and no allowlist/safe-bin entries.
func New(cfg Config) *Engine {
	e := &Engine{
		safeBins: make(map[string]bool),
		policy:   cfg.Policy,
	}
	if e.policy.Security == "" {
		e.policy = DefaultPolicy()
	}
	for _, b := range cfg.SafeBins {
		e.safeBins[b] = true
	}
	e.allowlist = append([]AllowlistEntry(nil), cfg.Allowlist...)
	return e
}

// Check parses command and evaluates every segment against the current
// policy, safe-bin list, and allowlist, returning the most-restrictive
// decision across all segments.
func (e *Engine) Check(command string) Result {
	analysis := ParseCommand(command)

	e.mu.RLock()
	policy := e.policy
	safeBins := e.safeBins
	allowlist := e.allowlist
	e.mu.RUnlock()

	if len(analysis.Segments) == 0 {
		return Result{Decision: Allow, Reason: "empty command", Analysis: analysis}
	}

	decision := Allow
	reason := ""
	var matched []AllowlistEntry

	for _, seg := range analysis.Segments {
		segDecision, segReason, segMatched := evaluateSegment(seg, policy, safeBins, allowlist)
		if segMatched != nil {
			matched = append(matched, *segMatched)
		}
		if segDecision.rank() > decision.rank() {
			decision = segDecision
			reason = segReason
		}
	}

	return Result{
		Decision:       decision,
		Reason:         reason,
		MatchedEntries: matched,
		Analysis:       analysis,
	}
}

func evaluateSegment(seg CommandSegment, policy Policy, safeBins map[string]bool, allowlist []AllowlistEntry) (Decision, string, *AllowlistEntry) {
	base := filepath.Base(seg.Binary)

	if safeBins[seg.Binary] || safeBins[base] {
		return Allow, fmt.Sprintf("%s is a safe binary", base), nil
	}

	if policy.AutoAllowSkills {
		for _, prefix := range skillsCommandPrefixes {
			if seg.Binary == prefix || base == prefix {
				return Allow, "skill runner auto-allowed", nil
			}
		}
	}

	for i := range allowlist {
		if matchesEntry(allowlist[i].Pattern, seg) {
			return Allow, fmt.Sprintf("matched allowlist pattern %q", allowlist[i].Pattern), &allowlist[i]
		}
	}

	switch policy.Security {
	case SecurityFull:
		return Allow, "security mode full", nil
	case SecurityDeny:
		return Deny, "security mode deny", nil
	case SecurityAllowlist:
		fallthrough
	default:
		switch policy.Ask {
		case AskAlways:
			return Ask, "ask policy always", nil
		case AskOnMiss:
			return Ask, "no allowlist match, asking", nil
		default:
			return fallbackDecision(policy.AskFallback), "no allowlist match, ask disabled", nil
		}
	}
}

// fallbackDecision resolves a policy's askFallback security mode into a
// final decision for when ask is off and nothing matched the allowlist.
func fallbackDecision(fallback SecurityMode) Decision {
	if fallback == SecurityFull {
		return Allow
	}
	return Deny
}

// AddAllowlist appends a new allowlist entry after validating its pattern.
func (e *Engine) AddAllowlist(pattern, description string) (AllowlistEntry, error) {
	if _, ok := validateGlob(pattern); !ok {
		return AllowlistEntry{}, &InvalidPattern{Pattern: pattern}
	}
	entry := AllowlistEntry{
		ID:          uuid.NewString(),
		Pattern:     pattern,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	e.mu.Lock()
	e.allowlist = append(e.allowlist, entry)
	e.mu.Unlock()
	return entry, nil
}

// RemoveAllowlist deletes the entry with the given id, reporting whether it
// was found.
func (e *Engine) RemoveAllowlist(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, entry := range e.allowlist {
		if entry.ID == id {
			e.allowlist = append(e.allowlist[:i], e.allowlist[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateAllowlist replaces the pattern/description of an existing entry.
func (e *Engine) UpdateAllowlist(id, pattern, description string) (AllowlistEntry, error) {
	if _, ok := validateGlob(pattern); !ok {
		return AllowlistEntry{}, &InvalidPattern{Pattern: pattern}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.allowlist {
		if e.allowlist[i].ID == id {
			e.allowlist[i].Pattern = pattern
			e.allowlist[i].Description = description
			return e.allowlist[i], nil
		}
	}
	return AllowlistEntry{}, fmt.Errorf("approval: allowlist entry %q not found", id)
}

// GetAllowlist returns a snapshot of the current allowlist.
func (e *Engine) GetAllowlist() []AllowlistEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]AllowlistEntry(nil), e.allowlist...)
}

// AddSafeBin registers a binary path or bare name that always evaluates to
// allow, bypassing the allowlist and policy entirely.
func (e *Engine) AddSafeBin(bin string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.safeBins[bin] = true
}

// RemoveSafeBin unregisters a previously-added safe binary.
func (e *Engine) RemoveSafeBin(bin string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.safeBins[bin] {
		delete(e.safeBins, bin)
		return true
	}
	return false
}

// SetPolicy replaces the effective policy wholesale.
func (e *Engine) SetPolicy(p Policy) error {
	if !validSecurityModes[p.Security] {
		return &InvalidConfig{Reason: fmt.Sprintf("unknown security mode %q", p.Security)}
	}
	if !validAskModes[p.Ask] {
		return &InvalidConfig{Reason: fmt.Sprintf("unknown ask mode %q", p.Ask)}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = p
	return nil
}

// GetPolicy returns the current policy.
func (e *Engine) GetPolicy() Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

// ExportConfig serializes the engine's full mutable state.
func (e *Engine) ExportConfig() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	bins := make([]string, 0, len(e.safeBins))
	for b := range e.safeBins {
		bins = append(bins, b)
	}
	return Config{
		Allowlist: append([]AllowlistEntry(nil), e.allowlist...),
		SafeBins:  bins,
		Policy:    e.policy,
	}
}

// ImportConfig replaces the engine's state wholesale after validating it.
// importConfig(exportConfig()) is the identity on observable behavior.
func (e *Engine) ImportConfig(cfg Config) error {
	if !validSecurityModes[cfg.Policy.Security] {
		return &InvalidConfig{Reason: fmt.Sprintf("unknown security mode %q", cfg.Policy.Security)}
	}
	if !validAskModes[cfg.Policy.Ask] {
		return &InvalidConfig{Reason: fmt.Sprintf("unknown ask mode %q", cfg.Policy.Ask)}
	}
	for _, entry := range cfg.Allowlist {
		if _, ok := validateGlob(entry.Pattern); !ok {
			return &InvalidPattern{Pattern: entry.Pattern}
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allowlist = append([]AllowlistEntry(nil), cfg.Allowlist...)
	e.safeBins = make(map[string]bool, len(cfg.SafeBins))
	for _, b := range cfg.SafeBins {
		e.safeBins[b] = true
	}
	e.policy = cfg.Policy
	return nil
}

// Reset clears the allowlist and safe-bin list and restores DefaultPolicy.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allowlist = nil
	e.safeBins = make(map[string]bool)
	e.policy = DefaultPolicy()
}

// validateGlob rejects only the empty pattern; `*`/`?` globs have no other
// invalid forms to check for.
func validateGlob(pattern string) (string, bool) {
	if pattern == "" {
		return pattern, false
	}
	return pattern, true
}
