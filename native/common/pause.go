package common

import "errors"

// ErrModulePaused is returned by guarded vault operations while their module
// is administratively halted.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module has been halted by an operator.
// The flashloan engine consults it before every mutating operation.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation when its module is paused. A nil view means no
// pause administration is wired and every operation proceeds.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
