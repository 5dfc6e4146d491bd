package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"ticketshop/src/lib"
	"ticketshop/src/models"
	"ticketshop/src/models/scopes"
	"ticketshop/src/types"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// TransferTokenService hands tickets from one user to another through
// single-use expiring tokens. A ticket has at most one valid token and never
// one while it is linked to an rfid.
type TransferTokenService struct {
	db     *gorm.DB
	clock  clockwork.Clock
	locks  *lib.KeyedMutex
	users  UserDirectory
	notify *notifications
	ttl    time.Duration
}

func (s *TransferTokenService) SetupForTransfer(ctx context.Context, ticketID uint, destinationEmail string) (*models.Token, error) {
	unlock := s.locks.Lock(ticketKey(ticketID))
	defer unlock()

	destinationEmail = strings.TrimSpace(destinationEmail)
	var token *models.Token
	var ticket *models.Ticket
	var source *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ticket, err = loadTicket(tx, ticketID)
		if err != nil {
			return err
		}
		ownerID, owned := ticket.Owner.UserID()
		if !ticket.Valid || !owned {
			return fmt.Errorf("ticket %d: %w", ticketID, ErrInvalidTicket)
		}
		if ticket.RFIDLink != nil {
			return fmt.Errorf("ticket %d: %w", ticketID, ErrTicketAlreadyLinked)
		}
		now := s.clock.Now()
		outstanding, err := hasOutstandingToken(tx, ticketID, now)
		if err != nil {
			return err
		}
		if outstanding {
			return fmt.Errorf("ticket %d: %w", ticketID, ErrDuplicateTransferToken)
		}
		source = &models.User{}
		if err := tx.First(source, ownerID).Error; err != nil {
			return notFound(err, ErrUserNotFound)
		}
		if strings.EqualFold(source.Email, destinationEmail) {
			return fmt.Errorf("ticket %d: %w", ticketID, ErrSelfTransfer)
		}
		token = models.NewTicketTransferToken(uuid.NewString(), ticketID, ownerID, destinationEmail, now.Add(s.ttl))
		token.CreatedAt = now
		token.UpdatedAt = now
		return tx.Create(token).Error
	})
	if err != nil {
		return nil, err
	}
	lib.RecordTransferToken("issued")
	log.Printf("[transfers] Ticket %d offered to %s until %s\n", ticketID, destinationEmail, token.ExpiresAt.Format(time.RFC3339))
	s.notify.transferOffered(token, ticket, source)
	return token, nil
}

// TransferTicket redeems a token for the caller, who must be its destination.
func (s *TransferTokenService) TransferTicket(ctx context.Context, value string, caller *models.User) (*models.Ticket, error) {
	token, err := findTransferToken(s.db.WithContext(ctx), value)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(ticketKey(*token.TicketID))
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		token, err := findTransferToken(tx, value)
		if err != nil {
			return err
		}
		transfer, _ := token.Transfer()
		if !token.IsValid(s.clock.Now()) {
			return ErrInvalidToken
		}
		if !strings.EqualFold(transfer.DestinationEmail, caller.Email) {
			return ErrNotTokenDestination
		}
		ticket, err := loadTicket(tx, transfer.TicketID)
		if err != nil {
			return err
		}
		if ticket.RFIDLink != nil {
			return fmt.Errorf("ticket %d: %w", ticket.ID, ErrTicketAlreadyLinked)
		}
		if !ticket.Valid || !ticket.Owner.Is(transfer.SourceUserID) {
			// the ticket changed hands or was invalidated since the token was issued
			return ErrInvalidToken
		}
		if err := useToken(tx, token.ID); err != nil {
			return err
		}
		return tx.Model(&models.Ticket{}).
			Where("id = ?", ticket.ID).
			Update("owner_id", types.UserOwner(caller.ID)).
			Error
	})
	if err != nil {
		return nil, err
	}
	lib.RecordTransferToken("redeemed")
	log.Printf("[transfers] Ticket %d transferred to user %d\n", *token.TicketID, caller.ID)
	return loadTicket(s.db.WithContext(ctx), *token.TicketID)
}

// CancelTicketTransfer withdraws a token. Only its source may do so.
func (s *TransferTokenService) CancelTicketTransfer(ctx context.Context, value string, caller *models.User) error {
	token, err := findTransferToken(s.db.WithContext(ctx), value)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(ticketKey(*token.TicketID))
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		token, err := findTransferToken(tx, value)
		if err != nil {
			return err
		}
		if !token.IsValid(s.clock.Now()) {
			return ErrInvalidToken
		}
		if token.UserID != caller.ID {
			return ErrNotTokenSource
		}
		return useToken(tx, token.ID)
	})
	if err != nil {
		return err
	}
	lib.RecordTransferToken("cancelled")
	log.Printf("[transfers] Transfer of ticket %d cancelled\n", *token.TicketID)
	return nil
}

// Outgoing lists the valid tokens the user issued.
func (s *TransferTokenService) Outgoing(ctx context.Context, userID uint) ([]models.Token, error) {
	var tokens []models.Token
	err := s.db.WithContext(ctx).
		Scopes(scopes.ValidTransferTokens(s.clock.Now())).
		Where("user_id = ?", userID).
		Order("id").
		Find(&tokens).
		Error
	return tokens, err
}

// Incoming lists the valid tokens addressed to the email.
func (s *TransferTokenService) Incoming(ctx context.Context, email string) ([]models.Token, error) {
	var tokens []models.Token
	err := s.db.WithContext(ctx).
		Scopes(scopes.ValidTransferTokens(s.clock.Now())).
		Where("LOWER(destination_email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Order("id").
		Find(&tokens).
		Error
	return tokens, err
}

func findTransferToken(db *gorm.DB, value string) (*models.Token, error) {
	var token models.Token
	err := db.Where("value = ? AND kind = ?", value, types.TOKEN_TICKET_TRANSFER).First(&token).Error
	if err != nil {
		return nil, notFound(err, ErrTokenNotFound)
	}
	if _, ok := token.Transfer(); !ok {
		return nil, ErrTokenNotFound
	}
	return &token, nil
}

func useToken(tx *gorm.DB, id uint) error {
	res := tx.Model(&models.Token{}).Where("id = ? AND used = ?", id, false).Update("used", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidToken
	}
	return nil
}

// hasOutstandingToken reports whether the ticket has a valid transfer token.
func hasOutstandingToken(tx *gorm.DB, ticketID uint, now time.Time) (bool, error) {
	var count int64
	err := tx.Model(&models.Token{}).
		Scopes(scopes.ValidTransferTokens(now)).
		Where("ticket_id = ?", ticketID).
		Count(&count).
		Error
	return count > 0, err
}
