package workspace

import "github.com/nexuscore/agentrt/internal/approval"

// SaveApprovalConfig persists an engine's exported config across the three
// files the workspace layout names: allowlist.json, policy.json, and
// safebins.json, in that order, each written atomically. Writing stops at
// the first failure: files before it hold the new config, while the failed
// file and those after it keep their previous content.
func (l Layout) SaveApprovalConfig(cfg approval.Config) error {
	if err := WriteJSONAtomic(l.AllowlistFile(), cfg.Allowlist); err != nil {
		return err
	}
	if err := WriteJSONAtomic(l.PolicyFile(), cfg.Policy); err != nil {
		return err
	}
	if err := WriteJSONAtomic(l.SafeBinsFile(), cfg.SafeBins); err != nil {
		return err
	}
	return nil
}

// LoadApprovalConfig reads the three approval files back into a Config.
// Missing files fall back to their zero value, except the policy: a policy
// with no security mode (missing or empty policy.json) is replaced by
// approval.DefaultPolicy().
func (l Layout) LoadApprovalConfig() (approval.Config, error) {
	var cfg approval.Config

	if _, err := ReadJSON(l.AllowlistFile(), &cfg.Allowlist); err != nil {
		return approval.Config{}, err
	}
	if _, err := ReadJSON(l.PolicyFile(), &cfg.Policy); err != nil {
		return approval.Config{}, err
	}
	if cfg.Policy.Security == "" {
		cfg.Policy = approval.DefaultPolicy()
	}
	if _, err := ReadJSON(l.SafeBinsFile(), &cfg.SafeBins); err != nil {
		return approval.Config{}, err
	}
	return cfg, nil
}
