package services

import (
	"context"
	"fmt"
	"log"
	"ticketshop/src/lib"
	"ticketshop/src/models"
	"time"

	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CatalogService manages ticket types and options.
type CatalogService struct {
	db    *gorm.DB
	clock clockwork.Clock
	locks *lib.KeyedMutex
}

type TicketTypeParams struct {
	Name     string
	Price    decimal.Decimal
	Capacity uint
	SaleEnd  time.Time
	Buyable  bool
	Options  []string
}

// TicketTypeUpdate holds the admin-editable fields. Nil fields are left as is.
type TicketTypeUpdate struct {
	Price    *decimal.Decimal
	Capacity *uint
	SaleEnd  *time.Time
	Buyable  *bool
}

func (s *CatalogService) CreateOption(ctx context.Context, name string, delta decimal.Decimal) (*models.TicketOption, error) {
	option := models.TicketOption{Name: name, PriceDelta: delta}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.TicketOption{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("option %q: %w", name, ErrDuplicateName)
		}
		return tx.Create(&option).Error
	})
	if err != nil {
		return nil, err
	}
	return &option, nil
}

func (s *CatalogService) CreateType(ctx context.Context, params TicketTypeParams) (*models.TicketType, error) {
	ticketType := models.TicketType{
		Name:     params.Name,
		Price:    params.Price,
		Capacity: params.Capacity,
		SaleEnd:  params.SaleEnd,
		Buyable:  params.Buyable,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.TicketType{}).Where("name = ? OR slug = ?", params.Name, slug.Make(params.Name)).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("ticket type %q: %w", params.Name, ErrDuplicateName)
		}
		options, err := findOptions(tx, params.Options, ErrOptionNotFound)
		if err != nil {
			return err
		}
		ticketType.Options = options
		return tx.Omit("Options.*").Create(&ticketType).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[catalog] Created ticket type %s (capacity %d)\n", ticketType.Name, ticketType.Capacity)
	return &ticketType, nil
}

func (s *CatalogService) GetType(ctx context.Context, name string) (*models.TicketType, error) {
	return getTypeByName(s.db.WithContext(ctx), name)
}

// GetTypeBySlug looks a type up by the URL form of its name.
func (s *CatalogService) GetTypeBySlug(ctx context.Context, typeSlug string) (*models.TicketType, error) {
	var ticketType models.TicketType
	if err := s.db.WithContext(ctx).Preload("Options").Where("slug = ?", typeSlug).First(&ticketType).Error; err != nil {
		return nil, notFound(err, fmt.Errorf("ticket type %q: %w", typeSlug, ErrTypeNotFound))
	}
	stats, err := typeStats(s.db.WithContext(ctx), &ticketType)
	if err != nil {
		return nil, err
	}
	ticketType.Stats = stats
	return &ticketType, nil
}

func (s *CatalogService) GetTypeByID(ctx context.Context, id uint) (*models.TicketType, error) {
	var ticketType models.TicketType
	if err := s.db.WithContext(ctx).Preload("Options").First(&ticketType, id).Error; err != nil {
		return nil, notFound(err, fmt.Errorf("ticket type %d: %w", id, ErrTypeNotFound))
	}
	stats, err := typeStats(s.db.WithContext(ctx), &ticketType)
	if err != nil {
		return nil, err
	}
	ticketType.Stats = stats
	return &ticketType, nil
}

func (s *CatalogService) ListTypes(ctx context.Context) ([]models.TicketType, error) {
	var ticketTypes []models.TicketType
	db := s.db.WithContext(ctx)
	if err := db.Preload("Options").Order("id").Find(&ticketTypes).Error; err != nil {
		return nil, err
	}
	for i := range ticketTypes {
		stats, err := typeStats(db, &ticketTypes[i])
		if err != nil {
			return nil, err
		}
		ticketTypes[i].Stats = stats
	}
	return ticketTypes, nil
}

// UpdateType applies an admin edit. Capacity cannot drop below the number of
// tickets already allocated.
func (s *CatalogService) UpdateType(ctx context.Context, id uint, update TicketTypeUpdate) (*models.TicketType, error) {
	unlock := s.locks.Lock(typeKey(id))
	defer unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ticketType models.TicketType
		if err := tx.First(&ticketType, id).Error; err != nil {
			return notFound(err, fmt.Errorf("ticket type %d: %w", id, ErrTypeNotFound))
		}
		changes := map[string]any{}
		if update.Price != nil {
			changes["price"] = *update.Price
		}
		if update.SaleEnd != nil {
			changes["sale_end"] = *update.SaleEnd
		}
		if update.Buyable != nil {
			changes["buyable"] = *update.Buyable
		}
		if update.Capacity != nil {
			if *update.Capacity > 0 {
				allocated, err := countLiveTickets(tx, id)
				if err != nil {
					return err
				}
				if int64(*update.Capacity) < allocated {
					return fmt.Errorf("capacity %d < %d allocated: %w", *update.Capacity, allocated, ErrCapacityBelowAllocation)
				}
			}
			changes["capacity"] = *update.Capacity
		}
		if len(changes) == 0 {
			return nil
		}
		return tx.Model(&ticketType).Updates(changes).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetTypeByID(ctx, id)
}

// PermitOption adds an existing option to the permitted set of a type.
func (s *CatalogService) PermitOption(ctx context.Context, typeID uint, optionName string) (*models.TicketType, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ticketType models.TicketType
		if err := tx.Preload("Options").First(&ticketType, typeID).Error; err != nil {
			return notFound(err, fmt.Errorf("ticket type %d: %w", typeID, ErrTypeNotFound))
		}
		options, err := findOptions(tx, []string{optionName}, ErrOptionNotFound)
		if err != nil {
			return err
		}
		if ticketType.Permits(options[0].ID) {
			return nil
		}
		return tx.Model(&ticketType).Association("Options").Append(&options[0])
	})
	if err != nil {
		return nil, err
	}
	return s.GetTypeByID(ctx, typeID)
}

func (s *CatalogService) Stats(ctx context.Context, typeID uint) (*models.TicketTypeStats, error) {
	ticketType, err := s.GetTypeByID(ctx, typeID)
	if err != nil {
		return nil, err
	}
	return ticketType.Stats, nil
}

func getTypeByName(db *gorm.DB, name string) (*models.TicketType, error) {
	var ticketType models.TicketType
	if err := db.Preload("Options").Where("name = ?", name).First(&ticketType).Error; err != nil {
		return nil, notFound(err, fmt.Errorf("ticket type %q: %w", name, ErrTypeNotFound))
	}
	return &ticketType, nil
}

// findOptions loads the named options, failing with missing for the first
// unknown name. Duplicate names are collapsed.
func findOptions(tx *gorm.DB, names []string, missing error) ([]models.TicketOption, error) {
	if len(names) == 0 {
		return nil, nil
	}
	unique := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			unique = append(unique, n)
		}
	}
	var options []models.TicketOption
	if err := tx.Where("name IN ?", unique).Order("id").Find(&options).Error; err != nil {
		return nil, err
	}
	if len(options) != len(unique) {
		found := make(map[string]bool, len(options))
		for _, o := range options {
			found[o.Name] = true
		}
		for _, n := range unique {
			if !found[n] {
				return nil, fmt.Errorf("option %q: %w", n, missing)
			}
		}
	}
	return options, nil
}

// countLiveTickets counts tickets of a type that hold capacity. Tickets of
// expired or cancelled orders are kept and still count; only deleting them
// frees capacity.
func countLiveTickets(tx *gorm.DB, typeID uint) (int64, error) {
	var count int64
	err := tx.Model(&models.Ticket{}).
		Where("ticket_type_id = ?", typeID).
		Count(&count).
		Error
	return count, err
}

func typeStats(tx *gorm.DB, ticketType *models.TicketType) (*models.TicketTypeStats, error) {
	allocated, err := countLiveTickets(tx, ticketType.ID)
	if err != nil {
		return nil, err
	}
	stats := &models.TicketTypeStats{
		TicketTypeID: ticketType.ID,
		Capacity:     ticketType.Capacity,
		Allocated:    uint(allocated),
		Unlimited:    ticketType.Unlimited(),
	}
	if !stats.Unlimited && stats.Capacity > stats.Allocated {
		stats.Free = stats.Capacity - stats.Allocated
	}
	return stats, nil
}
