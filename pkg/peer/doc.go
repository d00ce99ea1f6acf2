// Package peer содержит клиентское состояние peer connection: исходящие
// (SenderState) и входящие (ReceiverState) треки с их контроллерами медиа
// состояний, машину синхронизации с сервером и обновление локального потока.
//
// Каждый трек реагирует на свои контроллеры синхронно:
//   - переход отправляет серверу намерение UpdateTracks
//   - стабилизация применяет побочный эффект к трансиверу
//   - потеря соединения приостанавливает таймеры переходов, а повторная
//     синхронизация повторно отправляет незавершенные намерения
package peer
