// Package runner выполняет flow: обходит граф, вызывает исполнители
// узлов, применяет их записи к хранилищу переменных и ведёт журнал.
//
// Runner выполняет один run синхронно. Manager запускает run
// в отдельных горутинах, хранит активные run и умеет их отменять.
// TestNode выполняет один узел без обхода графа.
package runner
