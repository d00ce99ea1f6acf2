// Package signaling описывает протокол клиент-сервер: идентификаторы, треки,
// события сервера, команды клиента, снимки состояния для SynchronizeMe, а также
// транспорт сессии поверх WebSocket.
package signaling
