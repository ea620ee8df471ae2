package models

import "time"

type Customer struct {
	ID             string     `gorm:"primaryKey;size:64" json:"id" validate:"required,max=64"`
	OrganizationId string     `gorm:"size:64;not null;index" json:"organization_id"`
	Name           string     `gorm:"size:100;not null" json:"name" validate:"required,max=100"`
	Email          string     `gorm:"size:100" json:"email" validate:"omitempty,email,max=100"`
	Phone          string     `gorm:"size:32" json:"phone" validate:"max=32"`
	Address        string     `gorm:"type:text" json:"address"`
	Notes          string     `gorm:"type:text" json:"notes"`
	Status         string     `gorm:"size:20" json:"status" validate:"max=20"`
	LastModified   *time.Time `gorm:"index" json:"last_modified"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
