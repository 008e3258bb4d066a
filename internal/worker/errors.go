package worker

import "errors"

// Ошибки воркера.
var (
	// ErrRunNotFound — run не найден в БД.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunNotPending — run уже забран другим worker'ом или отменён.
	ErrRunNotPending = errors.New("run is not in PENDING status")

	// ErrFlowNotFound — flow запрошенного run удалён.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")
)
