package models

import "gorm.io/gorm"

// AutoMigrate creates or updates every table the shop uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&TicketOption{},
		&TicketType{},
		&Order{},
		&Ticket{},
		&RFIDLink{},
		&Token{},
		&PaymentTransaction{},
	)
}
