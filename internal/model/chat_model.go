package model

import (
	"time"

	"gorm.io/datatypes"
)

// Chat is the relational layout of a transcript. Score plays the role of the
// owner index: (owner_id, score) ordered descending gives the recency listing.
type Chat struct {
	Id        string         `gorm:"type:varchar(191);primaryKey"`
	OwnerId   string         `gorm:"type:varchar(191);not null;index:idx_chats_owner_score,priority:1"`
	Title     string         `gorm:"type:text"`
	Path      string         `gorm:"type:text"`
	Messages  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt *time.Time     `gorm:"autoCreateTime:false"`
	SharePath *string        `gorm:"type:text"`
	Score     int64          `gorm:"not null;index:idx_chats_owner_score,priority:2,sort:desc"`
}

func (Chat) TableName() string {
	return "chats"
}
