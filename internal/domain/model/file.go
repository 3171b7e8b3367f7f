package model

import "time"

// SchemaVersion — текущая версия схемы записи файла.
// Версия 1 — исходная схема без display_name/caption; версия 2 — текущая.
// Адаптер в repository поднимает старые строки до текущей формы.
const SchemaVersion = 2

// FileRecord — запись файла в хранилище.
// Хранится в таблице file_records. Сами байты лежат в канале
// платформы обмена сообщениями: пара (ChannelID, MessageID) —
// стабильный указатель для их извлечения.
type FileRecord struct {
	// ID — UUID записи (назначается при регистрации)
	ID string
	// OwnerID — идентификатор владельца на платформе
	OwnerID int64
	// OwnerUsername — username владельца (опционально)
	OwnerUsername *string
	// OriginalFilename — оригинальное имя файла
	OriginalFilename string
	// DisplayName — отображаемое имя (опционально, переопределяет оригинальное)
	DisplayName *string
	// FileKind — тип содержимого (document, photo, video, audio, voice)
	FileKind string
	// MimeType — MIME-тип файла (опционально)
	MimeType *string
	// FileSize — размер файла в байтах
	FileSize int64
	// ChannelID — идентификатор канала-хранилища (контейнер)
	ChannelID int64
	// MessageID — идентификатор сообщения в канале (позиция)
	MessageID int64
	// PlatformFileID — идентификатор файла на платформе (нестабильный, может ротироваться)
	PlatformFileID string
	// PlatformFileUniqueID — стабильный уникальный идентификатор файла (ключ дедупликации)
	PlatformFileUniqueID string
	// Caption — подпись к файлу (опционально)
	Caption *string
	// Tags — теги, нормализованные: нижний регистр, без ведущего '#'
	Tags []string
	// ShareCode — публичный код общего доступа (опционально, глобально уникален)
	ShareCode *string
	// ShareCodeUses — счётчик использований кода
	ShareCodeUses int64
	// ExpiresAt — время истечения (nil — хранится бессрочно)
	ExpiresAt *time.Time
	// UploadedAt — время загрузки
	UploadedAt time.Time
	// Version — версия схемы записи
	Version int
}

// EffectiveName возвращает имя файла для показа пользователю:
// DisplayName, если задано, иначе OriginalFilename.
func (f *FileRecord) EffectiveName() string {
	if f.DisplayName != nil && *f.DisplayName != "" {
		return *f.DisplayName
	}
	return f.OriginalFilename
}
