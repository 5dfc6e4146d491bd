package models

import "ticketshop/src/types"

type RFIDLink struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	RFID     string `gorm:"column:rfid;uniqueIndex;size:32;not null" json:"rfid"`
	TicketID uint   `gorm:"uniqueIndex;not null" json:"ticket_id"`

	types.Timestamps
}

func (RFIDLink) TableName() string {
	return "rfid_links"
}
