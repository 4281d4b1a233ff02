package app

import "errors"

var (
	ErrBundleNotFound  = errors.New("bundle not found")
	ErrModuleNotFound  = errors.New("module not declared by bundle")
	ErrAbilityNotFound = errors.New("ability not found")
	ErrProcessNotFound = errors.New("process not found")
	ErrSpawnFailed     = errors.New("failed to spawn process")
	ErrKillFailed      = errors.New("failed to kill process")
	ErrClosed          = errors.New("manager closed")
)
