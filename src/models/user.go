package models

import "ticketshop/src/types"

type User struct {
	ID    uint   `gorm:"primarykey" json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `gorm:"uniqueIndex;size:255;not null" json:"email,omitempty"`
	Role  string `json:"role,omitempty"`

	types.Timestamps
}
