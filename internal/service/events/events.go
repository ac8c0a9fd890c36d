package events

import "context"

// EventServer долгоживущий сетевой сервис, через который клиенты держат канал с компаньоном.
// Реализация: realtime.Hub (WebSocket).
type EventServer interface {
	// Start открывает слушатель и сразу возвращается. Отмена ctx останавливает именно этот запуск.
	Start(ctx context.Context) error

	// Stop закрывает слушатель и все живые соединения, дожидаясь их обработчиков.
	// После Stop сервис можно запустить снова.
	Stop(ctx context.Context) error

	// Addr фактический адрес слушателя во время работы, иначе адрес из конфига.
	Addr() string
}
