package services

import (
	"ticketshop/src/types"
	"time"
)

func (s *EngineTestSuite) TestTransferRoundTrip() {
	ticket := s.paidTicket(s.alice)

	token, err := s.engine.Transfers.SetupForTransfer(s.ctx, ticket.ID, "Bob@Example.com")
	s.Require().NoError(err)
	s.Equal(types.TOKEN_TICKET_TRANSFER, token.Kind)
	s.Equal(s.alice.ID, token.UserID)
	s.Equal(s.clock.Now().Add(72*time.Hour), token.ExpiresAt)
	s.Eventually(func() bool { return len(s.notifier.invited()) == 1 }, time.Second, 10*time.Millisecond)

	incoming, err := s.engine.Transfers.Incoming(s.ctx, s.bob.Email)
	s.Require().NoError(err)
	s.Len(incoming, 1)
	outgoing, err := s.engine.Transfers.Outgoing(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Len(outgoing, 1)

	_, err = s.engine.Transfers.TransferTicket(s.ctx, token.Value, s.alice)
	s.ErrorIs(err, ErrNotTokenDestination)

	transferred, err := s.engine.Transfers.TransferTicket(s.ctx, token.Value, s.bob)
	s.Require().NoError(err)
	s.True(transferred.Owner.Is(s.bob.ID))
	s.True(transferred.Valid)

	_, err = s.engine.Transfers.TransferTicket(s.ctx, token.Value, s.bob)
	s.ErrorIs(err, ErrInvalidToken)

	// the new owner may pass it on again
	_, err = s.engine.Transfers.SetupForTransfer(s.ctx, ticket.ID, s.alice.Email)
	s.NoError(err)
}

func (s *EngineTestSuite) TestCancelTransfer() {
	ticket := s.paidTicket(s.alice)
	token, err := s.engine.Transfers.SetupForTransfer(s.ctx, ticket.ID, s.bob.Email)
	s.Require().NoError(err)

	s.ErrorIs(s.engine.Transfers.CancelTicketTransfer(s.ctx, token.Value, s.bob), ErrNotTokenSource)
	s.Require().NoError(s.engine.Transfers.CancelTicketTransfer(s.ctx, token.Value, s.alice))
	s.ErrorIs(s.engine.Transfers.CancelTicketTransfer(s.ctx, token.Value, s.alice), ErrInvalidToken)

	_, err = s.engine.Transfers.TransferTicket(s.ctx, token.Value, s.bob)
	s.ErrorIs(err, ErrInvalidToken)
	current, err := s.engine.Tickets.Get(s.ctx, ticket.ID)
	s.Require().NoError(err)
	s.True(current.Owner.Is(s.alice.ID))

	// a cancelled offer no longer blocks a new one
	_, err = s.engine.Transfers.SetupForTransfer(s.ctx, ticket.ID, s.bob.Email)
	s.NoError(err)
}

func (s *EngineTestSuite) TestSetupForTransferRejections() {
	_, err := s.engine.Transfers.SetupForTransfer(s.ctx, 999, s.bob.Email)
	s.ErrorIs(err, ErrTicketNotFound)

	unpaid := s.assignedOrder(s.alice, "Weekend")
	_, err = s.engine.Transfers.SetupForTransfer(s.ctx, unpaid.Tickets[0].ID, s.bob.Email)
	s.ErrorIs(err, ErrInvalidTicket)

	ticket := s.paidTicket(s.alice)
	_, err = s.engine.Transfers.SetupForTransfer(s.ctx, ticket.ID, "ALICE@example.com")
	s.ErrorIs(err, ErrSelfTransfer)

	_, err = s.engine.Transfers.SetupForTransfer(s.ctx, ticket.ID, s.bob.Email)
	s.Require().NoError(err)
	_, err = s.engine.Transfers.SetupForTransfer(s.ctx, ticket.ID, "carol@example.com")
	s.ErrorIs(err, ErrDuplicateTransferToken)
}

func (s *EngineTestSuite) TestExpiredTransferToken() {
	ticket := s.paidTicket(s.alice)
	token, err := s.engine.Transfers.SetupForTransfer(s.ctx, ticket.ID, s.bob.Email)
	s.Require().NoError(err)

	s.clock.Advance(73 * time.Hour)
	_, err = s.engine.Transfers.TransferTicket(s.ctx, token.Value, s.bob)
	s.ErrorIs(err, ErrInvalidToken)

	// an expired offer no longer counts as outstanding
	_, err = s.engine.Transfers.SetupForTransfer(s.ctx, ticket.ID, s.bob.Email)
	s.NoError(err)
}

func (s *EngineTestSuite) TestUnknownTransferToken() {
	_, err := s.engine.Transfers.TransferTicket(s.ctx, "missing", s.bob)
	s.ErrorIs(err, ErrTokenNotFound)
	s.ErrorIs(s.engine.Transfers.CancelTicketTransfer(s.ctx, "missing", s.bob), ErrTokenNotFound)
}

func (s *EngineTestSuite) TestTransferAndRFIDExcludeEachOther() {
	linked := s.paidTicket(s.alice)
	_, err := s.engine.RFID.AddRFIDLink(s.ctx, "0123456789", linked.ID)
	s.Require().NoError(err)
	_, err = s.engine.Transfers.SetupForTransfer(s.ctx, linked.ID, s.bob.Email)
	s.ErrorIs(err, ErrTicketAlreadyLinked)

	offered := s.paidTicket(s.alice)
	token, err := s.engine.Transfers.SetupForTransfer(s.ctx, offered.ID, s.bob.Email)
	s.Require().NoError(err)
	_, err = s.engine.RFID.AddRFIDLink(s.ctx, "1111111111", offered.ID)
	s.ErrorIs(err, ErrTicketAlreadyLinked)

	s.Require().NoError(s.engine.Transfers.CancelTicketTransfer(s.ctx, token.Value, s.alice))
	_, err = s.engine.RFID.AddRFIDLink(s.ctx, "1111111111", offered.ID)
	s.NoError(err)
}

func (s *EngineTestSuite) TestRedeemRechecksRFIDLink() {
	ticket := s.paidTicket(s.alice)
	token, err := s.engine.Transfers.SetupForTransfer(s.ctx, ticket.ID, s.bob.Email)
	s.Require().NoError(err)

	// a link written behind the registry's back still blocks redemption
	s.Require().NoError(s.db.Exec(
		"INSERT INTO rfid_links (rfid, ticket_id, created_at, updated_at) VALUES (?, ?, ?, ?)",
		"2222222222", ticket.ID, s.clock.Now(), s.clock.Now(),
	).Error)

	_, err = s.engine.Transfers.TransferTicket(s.ctx, token.Value, s.bob)
	s.ErrorIs(err, ErrTicketAlreadyLinked)
	current, err := s.engine.Tickets.Get(s.ctx, ticket.ID)
	s.Require().NoError(err)
	s.True(current.Owner.Is(s.alice.ID))
}
