// Package mockSession предоставляет in-memory реализацию signaling.Session
// и сценарный сервер для тестирования комнаты без сети.
//
// Session учитывает доставленные и отброшенные команды и позволяет
// эмулировать потерю и восстановление соединения. Server хранит авторитетное
// состояние треков и отвечает на UpdateTracks и SynchronizeMe.
//
// Пример использования:
//
//	session := mockSession.NewSession()
//	server := mockSession.NewServer(session)
//	defer server.Close()
//
//	server.AddPeer(signaling.PeerCreated{PeerID: 1, Tracks: tracks})
//	server.SetAutoApprove(false) // сервер перестает подтверждать намерения
//	session.DropConnection()     // комната получит ConnectionLost
package mockSession
