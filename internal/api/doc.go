// Package api — HTTP API Flowline.
//
// Маршруты:
//
//	PUT    /api/v1/flows/{id}           сохранить документ flow
//	GET    /api/v1/flows/{id}           получить документ
//	GET    /api/v1/flows                список flows
//	DELETE /api/v1/flows/{id}           удалить flow и его расписания
//	POST   /api/v1/flows/validate       проверить документ
//	POST   /api/v1/flows/execute        выполнить присланный документ синхронно
//	POST   /api/v1/flows/{id}/runs      запустить сохранённый flow (?wait=true — синхронно)
//	GET    /api/v1/runs                 список runs
//	GET    /api/v1/runs/{id}            run с журналом выполнения
//	POST   /api/v1/runs/{id}/cancel     отменить run
//	POST   /api/v1/nodes/test           выполнить один узел
//	GET    /api/v1/schedules            расписания cron
//
// Ответы: {"data": ...} или {"error": {"code", "message", "problems"}}.
package api
