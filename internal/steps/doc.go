// Package steps содержит исполнители узлов flow.
//
// # Обзор
//
// Каждый исполнитель обслуживает один тип узла. Исполнитель:
//   - Получает узел и область видимости переменных (engine.Store)
//   - Сам разрешает шаблоны в полях своей конфигурации
//   - Возвращает Outcome: записи в хранилище, журнал, выбранный handle
//
// Хранилище исполнитель не меняет: записи применяет runner.
//
// # Интерфейс Step
//
//	type Step interface {
//	    Kind() domain.NodeKind
//	    Execute(ctx context.Context, req *Request) (*Outcome, error)
//	}
//
// Outcome содержит:
//   - EdgeSelector — handle исходящего ребра ("true", "false", "complete" или "")
//   - Writes — записи {key, value}
//   - Log — записи журнала
//   - Terminal — сигнал остановки run (stopJob)
//
// # Registry
//
//	registry := steps.DefaultRegistry(httpclient.New(httpclient.Config{}))
//	step, err := registry.Get(domain.KindHTTPRequest)
//
// # Типы узлов
//
//   - httpRequest (http.go) — HTTP-запрос, результат в <id>.result {status, headers, data}
//   - ifElse (ifelse.go) — comparison, expression или exists; ребро "true"/"false"
//   - loop (loop.go) — forEach/while; тело через Request.RunBody, затем ребро "complete"
//   - setVariable (setvariable.go) — vars.<variableKey>, опционально через transform
//   - log (log.go) — запись в журнал
//   - delay (delay.go) — пауза или cron-директива для планировщика
//   - stopJob (stopjob.go) — Terminal
//
// # Обработка ошибок
//
// Ошибка Execute — ошибка узла. Runner оборачивает её в engine.NodeError
// и по умолчанию завершает run со статусом FAILED. Неразрешённые
// плейсхолдеры не ошибка: они пишутся в журнал с уровнем warning.
// Исключения — операнды comparison и arrayPath.
package steps
