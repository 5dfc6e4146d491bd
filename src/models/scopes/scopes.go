package scopes

import (
	"ticketshop/src/types"
	"time"

	"gorm.io/gorm"
)

func WithID(id uint) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	}
}

func WithStatus(statuses ...types.OrderStatus) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status IN ?", statuses)
	}
}

func WithPendingStatus(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", types.ORDER_PENDING)
}

func OwnedBy(userID uint) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_id = ?", userID)
	}
}

func CreatedBefore(t time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("created_at < ?", t)
	}
}

// NotPolledSince matches orders never polled or last polled before t.
func NotPolledSince(t time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(last_polled_at IS NULL OR last_polled_at < ?)", t)
	}
}

// ValidTransferTokens matches ticket transfer tokens that are unused and not
// expired at now.
func ValidTransferTokens(now time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Where("kind = ?", types.TOKEN_TICKET_TRANSFER).
			Where("used = ? AND expires_at > ?", false, now)
	}
}
