package models

import "time"

type RecordsRequestStatus string

const (
	RecordsRequestStatusDraft     RecordsRequestStatus = "draft"
	RecordsRequestStatusSent      RecordsRequestStatus = "sent"
	RecordsRequestStatusResponded RecordsRequestStatus = "responded"
	RecordsRequestStatusDenied    RecordsRequestStatus = "denied"
	RecordsRequestStatusPartial   RecordsRequestStatus = "partial"
)

// RecordsRequest tracks a public-records request drafted for an entity.
type RecordsRequest struct {
	ID       int    `gorm:"primary_key" json:"id"`
	EntityID int    `gorm:"index;not null" json:"entity_id"`
	ScopeKey string `gorm:"size:64;index" json:"scope_key"`

	Status      RecordsRequestStatus `gorm:"size:20;index;default:draft" json:"status"`
	RequestText string               `gorm:"type:text" json:"request_text"`
	Recipient   string               `gorm:"size:255" json:"recipient"`

	SentDate     *time.Time `json:"sent_date"`
	ResponseDate *time.Time `json:"response_date"`
	ResponseText string     `gorm:"type:text" json:"response_text"`

	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
