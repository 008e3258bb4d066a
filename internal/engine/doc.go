// Package engine содержит ядро движка выполнения flow.
//
// Включает:
//   - validate.go — валидация документа flow
//   - graph.go    — граф узлов: entry-узлы, выбор ребра по handle, тела loop
//   - template.go — разрешение шаблонов {{path}}
//   - store.go    — хранилище переменных run и overlay для итераций loop
//   - expr.go     — песочница выражений (expr-lang)
//   - execlog.go  — журнал выполнения
//   - cron.go     — разбор cron-выражений delay-узлов
//
// Engine не выполняет узлы сам: обход графа — в runner,
// исполнители узлов — в steps.
package engine
