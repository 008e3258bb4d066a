package runner

import "errors"

// Ошибки runner.
var (
	// ErrRunNotFound — run не найден среди активных.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunAlreadyActive — run с таким ID уже выполняется.
	ErrRunAlreadyActive = errors.New("run already being processed")

	// ErrManagerStopped — менеджер остановлен и не принимает новые run.
	ErrManagerStopped = errors.New("run manager stopped")

	// ErrNodeNotFound — узел для test-node не найден во flow.
	ErrNodeNotFound = errors.New("node not found in flow")
)
