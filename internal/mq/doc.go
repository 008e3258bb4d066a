// Package mq — обмен событиями о runs через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с переподключением
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — публикация run.requested и run.completed
//   - consumer.go   — потребление с ack/nack и DLQ
//
// Типы сообщений:
//   - run.requested — run создан и ждёт worker (API, scheduler)
//   - run.completed — run завершён; Publisher реализует runner.Recorder
package mq
