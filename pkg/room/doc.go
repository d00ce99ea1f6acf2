// Package room связывает сессию сигнализации, peers и локальное медиа
// в комнату звонка.
//
// Комната обрабатывает события сервера в отдельной горутине и предоставляет
// приложению операции изменения медиа состояний (mute/unmute, enable/disable
// для отправки и приема) и замены настроек локального медиа. Каждая операция
// возвращает определенный результат: nil либо *ChangeMediaStateError или
// *ConstraintsUpdateError.
//
// Пример использования:
//
//	client, err := room.NewClient(cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Dispose()
//
//	handle, err := client.InitRoom(session)
//	if err != nil {
//		return err
//	}
//	if err := handle.MuteAudio(ctx); err != nil {
//		var cerr *room.ChangeMediaStateError
//		if errors.As(err, &cerr) && cerr.Kind == room.KindProhibitedState {
//			// обязательный трек
//		}
//	}
package room
