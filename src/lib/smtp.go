package lib

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"ticketshop/src/models"

	"github.com/wneessen/go-mail"
)

func GetSMTPClient() (*mail.Client, error) {
	host := os.Getenv("SMTP_HOST")
	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		port = 587
	}
	user := os.Getenv("SMTP_USERNAME")
	pass := os.Getenv("SMTP_PASSWORD")
	c, err := mail.NewClient(host, mail.WithPort(port), mail.WithSMTPAuth(mail.SMTPAuthPlain), mail.WithUsername(user), mail.WithPassword(pass))
	if err != nil {
		log.Printf("Could not initialize smtp client: %s\n", err.Error())
		return nil, err
	}
	return c, nil
}

func SendMail(inputParams *SendMailInput) error {
	c, err := GetSMTPClient()
	if err != nil {
		return err
	}
	msg, err := BuildMessage(inputParams)
	if err != nil {
		return err
	}
	return c.DialAndSend(msg)
}

// BuildMessage turns the input into a go-mail message without sending it.
func BuildMessage(inputParams *SendMailInput) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(inputParams.FromName, inputParams.From); err != nil {
		log.Printf("Failed to set From address: %s\n", err.Error())
		return nil, err
	}
	if err := msg.To(inputParams.To...); err != nil {
		log.Printf("Failed to set To address: %s\n", err.Error())
		return nil, err
	}
	if len(inputParams.Bcc) > 0 {
		if err := msg.Bcc(inputParams.Bcc...); err != nil {
			log.Printf("Failed to set Bcc address: %s\n", err.Error())
		}
	}
	msg.Subject(inputParams.Subject)
	if inputParams.Html {
		msg.SetBodyString(mail.TypeTextHTML, inputParams.Body)
	} else {
		msg.SetBodyString(mail.TypeTextPlain, inputParams.Body)
	}
	for _, a := range inputParams.Attachments {
		if err := msg.AttachReader(a.Name, bytes.NewReader(a.Content)); err != nil {
			log.Printf("Failed to attach %s: %s\n", a.Name, err.Error())
			return nil, err
		}
	}
	return msg, nil
}

type SendMailInput struct {
	From     string
	FromName string
	To       []string
	Bcc      []string
	Subject  string
	Body     string
	Html     bool

	Attachments []Attachment
}

type Attachment struct {
	Name    string
	Content []byte
}

// MailNotifier sends order and transfer notifications over SMTP.
type MailNotifier struct {
	from    string
	appHost string
	send    func(*SendMailInput) error
}

func NewMailNotifier(from, appHost string) *MailNotifier {
	return &MailNotifier{from: from, appHost: appHost, send: SendMail}
}

func (n *MailNotifier) SendOrderConfirmation(order *models.Order, recipient *models.User) error {
	return n.send(n.OrderConfirmationMail(order, recipient))
}

func (n *MailNotifier) SendTransferInvitation(token *models.Token, ticket *models.Ticket, source *models.User) error {
	input, err := n.TransferInvitationMail(token, ticket, source)
	if err != nil {
		return err
	}
	return n.send(input)
}

func (n *MailNotifier) OrderConfirmationMail(order *models.Order, recipient *models.User) *SendMailInput {
	var b strings.Builder
	var attachments []Attachment
	fmt.Fprintf(&b, "Hello %s,\n\nyour order #%d is confirmed.\n\n", recipient.Name, order.ID)
	for _, ticket := range order.Tickets {
		fmt.Fprintf(&b, "- Ticket #%d: %s (%s)\n", ticket.ID, ticket.TicketType.Name, ticket.Price().StringFixed(2))
		img, err := TicketQRCode(n.appHost, ticket.ID)
		if err != nil {
			log.Printf("[mail] Could not render e-ticket %d: %s\n", ticket.ID, err.Error())
			continue
		}
		attachments = append(attachments, Attachment{Name: fmt.Sprintf("eticket-%d.jpeg", ticket.ID), Content: img})
	}
	fmt.Fprintf(&b, "\nTotal: %s\n\n%s/orders/%d\n", order.Amount.StringFixed(2), n.appHost, order.ID)
	return &SendMailInput{
		From:     n.from,
		FromName: "Ticket Shop",
		To:       []string{recipient.Email},
		Subject:  fmt.Sprintf("Your order #%d", order.ID),
		Body:     b.String(),

		Attachments: attachments,
	}
}

func (n *MailNotifier) TransferInvitationMail(token *models.Token, ticket *models.Ticket, source *models.User) (*SendMailInput, error) {
	transfer, ok := token.Transfer()
	if !ok {
		return nil, fmt.Errorf("token %d is not a ticket transfer", token.ID)
	}
	body := fmt.Sprintf(
		"%s wants to transfer a %s ticket to you.\n\nAccept it here before %s:\n%s/transfers/%s\n",
		source.Name, ticket.TicketType.Name, token.ExpiresAt.Format("2006-01-02 15:04 MST"), n.appHost, token.Value,
	)
	return &SendMailInput{
		From:     n.from,
		FromName: "Ticket Shop",
		To:       []string{transfer.DestinationEmail},
		Subject:  "A ticket is waiting for you",
		Body:     body,
	}, nil
}
