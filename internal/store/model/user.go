package model

import "time"

type User struct {
	Username     string    `gorm:"primaryKey;column:username;type:VARCHAR;size:256"`
	Organization string    `gorm:"column:organization;type:VARCHAR;size:255"`
	PasswordHash string    `gorm:"column:password_hash;type:VARCHAR;size:255;not null"`
	Admin        bool      `gorm:"column:admin;not null;default:false"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}
