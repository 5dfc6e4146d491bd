package db

import (
	"log"
	"ticketshop/src/config"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var db *gorm.DB

func GetDb() *gorm.DB {
	if db != nil {
		return db
	}
	cfg := config.LoadConfig()
	_db, err := gorm.Open(Dialector(cfg))
	if err != nil {
		log.Printf("Error connecting to database: %s\n", err.Error())
		panic(err)
	}
	sqlDB, err := _db.DB()
	if err != nil {
		log.Fatalf("Error establishing connection to database: %s\n", err.Error())
	}
	if cfg.DatabaseDriver == "sqlite" {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}

	db = _db
	return _db
}

// Dialector picks the gorm driver for the configured database.
func Dialector(cfg *config.Config) gorm.Dialector {
	if cfg.DatabaseDriver == "sqlite" {
		return sqlite.Open(cfg.SQLitePath)
	}
	return postgres.Open(config.GetDSN())
}

func NewDB(newdb *gorm.DB) {
	db = newdb
}
