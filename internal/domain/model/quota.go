package model

import (
	"math"
	"time"
)

// UserQuota — квота одного пользователя.
// Хранится в таблице user_quotas, создаётся лениво при первом обращении.
// Счётчики обнуляются по расписанию (следующая полночь UTC), проверка
// сброса выполняется в запросе, а не фоновым таймером.
type UserQuota struct {
	// OwnerID — идентификатор владельца (первичный ключ)
	OwnerID int64
	// BytesUsed — израсходованная полоса в байтах с последнего сброса
	BytesUsed int64
	// BytesLimit — лимит полосы в байтах (0 — безлимит)
	BytesLimit int64
	// DownloadsUsed — количество скачиваний с последнего сброса
	DownloadsUsed int64
	// DownloadsLimit — лимит количества скачиваний (0 — безлимит)
	DownloadsLimit int64
	// ResetTime — время следующего планового сброса счётчиков (nil — ещё не назначено)
	ResetTime *time.Time
	// Token — общий секрет для верификации скачиваний (nil — не задан)
	Token *string
	// VerifiedUntil — конец окна верификации (nil или прошлое — не верифицирован)
	VerifiedUntil *time.Time
	// UpdatedAt — время последнего изменения записи
	UpdatedAt time.Time
}

// RemainingBytes возвращает остаток полосы. Лимит 0 — безлимит,
// остаток +Inf. Остаток не бывает отрицательным.
func (q *UserQuota) RemainingBytes() float64 {
	return remaining(q.BytesUsed, q.BytesLimit)
}

// RemainingDownloads возвращает остаток скачиваний по тем же правилам.
func (q *UserQuota) RemainingDownloads() float64 {
	return remaining(q.DownloadsUsed, q.DownloadsLimit)
}

// IsVerified сообщает, действует ли окно верификации на момент now.
// Граница строгая: VerifiedUntil == now считается истёкшим.
func (q *UserQuota) IsVerified(now time.Time) bool {
	return q.VerifiedUntil != nil && q.VerifiedUntil.After(now)
}

func remaining(used, limit int64) float64 {
	if limit == 0 {
		return math.Inf(1)
	}
	r := limit - used
	if r < 0 {
		r = 0
	}
	return float64(r)
}
