// Flowline CLI — локальное выполнение документов flow и управление
// flows, runs и schedules через HTTP API.
//
// Использование:
//
//	flowline [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	validate   Проверка документа flow
//	run        Локальное выполнение flow
//	test-node  Выполнение одного узла
//	flows      Управление flows на сервере
//	runs       Управление runs на сервере
//	schedules  Просмотр cron-расписаний
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Flowline/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	// Ctrl+C отменяет локальный run
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCmd(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
