package lib

import (
	"bytes"
	"fmt"

	"github.com/yeqown/go-qrcode"
)

// TicketCode is the text encoded in a ticket's e-ticket QR code.
func TicketCode(appHost string, ticketID uint) string {
	return fmt.Sprintf("%s/tickets/%d", appHost, ticketID)
}

// TicketQRCode renders the ticket code as a JPEG image.
func TicketQRCode(appHost string, ticketID uint) ([]byte, error) {
	qrc, err := qrcode.New(TicketCode(appHost, ticketID))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := qrc.SaveTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
