// README: SMTP receipt mailer.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"gopkg.in/gomail.v2"

	"dashr/internal/config"
	"dashr/internal/types"
)

type ReceiptLine struct {
	Name     string
	Quantity int
	Amount   types.Money
}

type Receipt struct {
	To          string
	Name        string
	OrderID     string
	VenueName   string
	Lines       []ReceiptLine
	Subtotal    types.Money
	ServiceFee  types.Money
	DeliveryFee types.Money
	Tip         types.Money
	Total       types.Money
	Refunded    types.Money
}

var receiptTmpl = template.Must(template.New("receipt").Parse(`Hi {{.Name}},

thanks for ordering from {{.VenueName}}. Order {{.OrderID}}:
{{range .Lines}}
  {{.Quantity}} x {{.Name}}  {{.Amount}}{{end}}

Subtotal      {{.Subtotal}}
Service fee   {{.ServiceFee}}
Delivery fee  {{.DeliveryFee}}
Tip           {{.Tip}}
Total         {{.Total}}
{{if .Refunded.Amount}}Refunded      {{.Refunded}}
{{end}}`))

func renderReceipt(r Receipt) (string, error) {
	var buf bytes.Buffer
	if err := receiptTmpl.Execute(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   cfg.From,
	}
}

func (m *SMTPMailer) SendReceipt(_ context.Context, r Receipt) error {
	body, err := renderReceipt(r)
	if err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", r.To)
	msg.SetHeader("Subject", fmt.Sprintf("Your receipt for order %s", r.OrderID))
	msg.SetBody("text/plain", body)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send receipt %s: %w", r.OrderID, err)
	}
	return nil
}
