// Package local_media управляет локальными медиа треками клиента: настройками
// захвата (MediaStreamSettings), их потокобезопасными обертками для комнаты,
// запросом треков у платформы и переиспользованием уже полученных треков.
package local_media
