// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — файл не найден или недоступен вызывающему.
	// Намеренно используется и при несовпадении владельца: пользовательское
	// сообщение не отличает "нет такой записи" от "запись чужая", чтобы
	// не раскрывать существование чужих файлов.
	ErrNotFound = errors.New("файл не найден или недоступен")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrCapacityExceeded — лимит полосы исчерпан.
	ErrCapacityExceeded = errors.New("лимит полосы исчерпан")
	// ErrCountExceeded — лимит количества скачиваний исчерпан.
	ErrCountExceeded = errors.New("лимит количества скачиваний исчерпан")
	// ErrNoToken — токен скачивания не установлен.
	ErrNoToken = errors.New("токен скачивания не установлен")
	// ErrNotVerified — окно верификации отсутствует или истекло.
	ErrNotVerified = errors.New("требуется верификация токена")
	// ErrCollisionExhausted — не удалось подобрать свободный код общего
	// доступа за отведённое число попыток.
	ErrCollisionExhausted = errors.New("не удалось выпустить код общего доступа")
	// ErrDeliveryFailed — доставка файла через bot-module не удалась.
	ErrDeliveryFailed = errors.New("не удалось доставить файл")
)
