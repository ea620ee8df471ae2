package models

import "time"

type Equipment struct {
	ID             string     `gorm:"primaryKey;size:64" json:"id" validate:"required,max=64"`
	OrganizationId string     `gorm:"size:64;not null;index" json:"organization_id"`
	Name           string     `gorm:"size:255;not null" json:"name" validate:"required,max=255"`
	Status         string     `gorm:"size:32" json:"status" validate:"max=32"`
	Notes          string     `gorm:"type:text" json:"notes"`
	LastModified   *time.Time `gorm:"index" json:"last_modified"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
