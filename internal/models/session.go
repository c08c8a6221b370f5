package models

import "time"

// UserSession is one server-side session row. A row with RevokedAt set is
// never reactivated.
type UserSession struct {
	Base
	OwnerSubjectID string     `json:"owner_subject_id" gorm:"size:64;index:idx_owner_active,priority:1;not null"`
	DeviceType     string     `json:"device_type"      gorm:"size:16"`
	Browser        string     `json:"browser"          gorm:"size:32"`
	UserAgent      string     `json:"user_agent"       gorm:"type:text"`
	IPAddress      string     `json:"ip_address"       gorm:"size:64"`
	LastUsedAt     time.Time  `json:"last_used_at"     gorm:"not null"`
	ExpiresAt      time.Time  `json:"expires_at"       gorm:"index;not null"`
	RevokedAt      *time.Time `json:"revoked_at"       gorm:"index:idx_owner_active,priority:2"`
}

func (UserSession) TableName() string { return "user_sessions" }
