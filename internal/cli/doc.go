// Package cli реализует инструмент командной строки flowline.
//
// # Обзор
//
// CLI работает в двух режимах:
//   - локально: validate, run и test-node выполняют документ flow
//     прямо в процессе CLI (runner, steps, httpclient), сервер не нужен;
//   - удалённо: flows, runs и schedules обращаются к Flowline API по HTTP.
//
// Документы flow и снимки upstream читаются из JSON или YAML
// (gopkg.in/yaml.v3), формат определяется расширением файла.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Flowline API. Инкапсулирует HTTP-запросы,
// разбор ответов (data, list, error) и ошибок валидации.
//
//	client := cli.NewClient("http://localhost:8080")
//	runs, err := client.ListRuns(cli.ListRunsOpts{Status: "FAILED"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON с отступами — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: flowline runs list --json | jq .
//
// ## Commands
//
//   - validate FILE
//   - run FILE [--var KEY=VALUE]
//   - test-node FILE --node ID [--upstream FILE]
//   - flows: list, push, delete
//   - runs: list, start, show, cancel
//   - schedules: list
//
// Каждая группа создаётся фабричной функцией (NewRunsCmd и т.д.),
// принимающей clientFn/runnerFn и outputFn — замыкания для ленивого
// создания зависимостей после разбора PersistentFlags.
package cli
