package models

import "time"

type ReviewResolution string

const (
	ReviewResolutionApproved ReviewResolution = "approved"
	ReviewResolutionRejected ReviewResolution = "rejected"
)

// ReviewMatch is a link proposal below the automatic-acceptance confidence
// bar, held for human resolution. It transitions resolved=false -> true
// exactly once and never back.
type ReviewMatch struct {
	ID       int    `gorm:"primary_key" json:"id"`
	ScopeKey string `gorm:"size:64;index" json:"scope_key"`

	CandidateName    string `gorm:"size:255;index" json:"candidate_name"`
	CandidateAddress string `gorm:"size:255" json:"candidate_address"`
	CandidateSource  string `gorm:"size:150;index" json:"candidate_source"`

	// EntityID is the provisional link; nil when no entity was chosen.
	EntityID   *int             `gorm:"index" json:"entity_id"`
	Confidence float64          `gorm:"default:0" json:"confidence"`
	Reason     string           `gorm:"size:255" json:"reason"`
	Resolved   bool             `gorm:"index;default:false" json:"resolved"`
	Resolution ReviewResolution `gorm:"size:20" json:"resolution,omitempty"`
	CreatedAt  time.Time        `gorm:"autoCreateTime" json:"created_at"`
}
