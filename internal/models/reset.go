package models

import "time"

type DailyReset struct {
	ID                 int64     `json:"id"`
	LastResetDate      string    `json:"last_reset_date"`
	LastResetTimestamp time.Time `json:"last_reset_timestamp"`
	TicketsReset       bool      `json:"tickets_reset"`
	PDFsReset          bool      `json:"pdfs_reset"`
	CacheReset         bool      `json:"cache_reset"`
	CreatedAt          time.Time `json:"created_at"`
}
