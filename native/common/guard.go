package common

import (
	"errors"
	"strings"
)

// Module names accepted by the pause guard.
const (
	ModuleStaking    = "staking"
	ModuleGovernance = "governance"
	ModuleDelegation = "delegation"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// StaticPauses is a PauseView backed by a fixed set of module names, typically
// loaded from the service configuration.
type StaticPauses map[string]struct{}

// NewStaticPauses builds a pause set from raw module names. Blank entries are
// ignored and names are matched case-insensitively.
func NewStaticPauses(modules []string) StaticPauses {
	out := make(StaticPauses, len(modules))
	for _, module := range modules {
		trimmed := strings.ToLower(strings.TrimSpace(module))
		if trimmed == "" {
			continue
		}
		out[trimmed] = struct{}{}
	}
	return out
}

// IsPaused implements PauseView.
func (s StaticPauses) IsPaused(module string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(module))]
	return ok
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
