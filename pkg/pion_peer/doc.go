// Package pion_peer реализует peer.Connection и peer.Transceiver поверх
// pion/webrtc/v4.
//
// Направления трансивера после создания не меняются: отключенная отправка
// отвязывает трек от RTPSender, отключенный прием отбрасывает входящие RTP
// пакеты. Локальные треки (Track) пишутся приложением через WriteRTP и
// молчат, пока трек выключен.
//
// Пример:
//
//	factory, err := pion_peer.NewFactory(pion_peer.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	cfg := room.DefaultConfig()
//	cfg.ConnectionFactory = factory.NewConnection
//	cfg.Acquirer = pion_peer.NewAcquirer()
package pion_peer
