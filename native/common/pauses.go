package common

import "errors"

// ErrModulePaused is returned by Guard when the hosting environment has the
// named module switched off.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the hosting environment's pause switches. Pause and
// access-control plumbing live outside the ledger core; engines only consult
// this view on entry to mutating operations.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation when the module is paused. A nil view or empty
// module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
