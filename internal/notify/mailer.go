package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"go.uber.org/zap"
	"gopkg.in/mail.v2"

	"storefront/internal/models"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends order emails over SMTP. Sending happens on its own goroutine
// so a slow mail server never holds up a request.
type Mailer struct {
	from string
	log  *zap.Logger
	send func(*mail.Message) error
}

func NewMailer(cfg SMTPConfig, log *zap.Logger) *Mailer {
	dialer := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.Timeout = 20 * time.Second

	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &Mailer{
		from: from,
		log:  log.Named("mailer"),
		send: func(msg *mail.Message) error { return dialer.DialAndSend(msg) },
	}
}

// OrderPlaced emails the order confirmation to recipient.
func (m *Mailer) OrderPlaced(order models.Order, recipient string) {
	body, err := renderOrderPlaced(order)
	if err != nil {
		m.log.Error("render order email", zap.String("orderNumber", order.OrderNumber), zap.Error(err))
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", fmt.Sprintf("Order %s confirmed", order.OrderNumber))
	msg.SetBody("text/html", body)

	go func() {
		if err := m.send(msg); err != nil {
			m.log.Error("send order email", zap.String("orderNumber", order.OrderNumber), zap.Error(err))
			return
		}
		m.log.Info("order email sent", zap.String("orderNumber", order.OrderNumber))
	}()
}

// Nop drops every notification. It is used when SMTP is not configured.
type Nop struct{}

func (Nop) OrderPlaced(models.Order, string) {}

var orderPlacedTemplate = template.Must(template.New("order").Funcs(template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
}).Parse(`<!DOCTYPE html>
<html>
<body>
	<h2>Thank you for your order</h2>
	<p>Order number: <strong>{{.OrderNumber}}</strong></p>
	<table>
		{{range .Items}}<tr><td>{{.Variant.Title}}</td><td>x{{.Quantity}}</td><td>{{money .LineTotal}}</td></tr>
		{{end}}
	</table>
	<p>Subtotal: {{money .TotalAmount}}</p>
	{{if .Discount}}<p>Discount ({{.Discount.Code}}): -{{money .Discount.Amount}}</p>{{end}}
	<p>Shipping: {{money .Shipping.Cost}}</p>
	<p><strong>Total payable: {{money .PayableAmount}}</strong></p>
	<p>Shipping to {{.Address.FlatNo}}, {{.Address.Street}}, {{.Address.City}} {{.Address.Pincode}}</p>
	<p>Estimated delivery: {{.EstimatedDeliveryDate.Format "02 Jan 2006"}}</p>
</body>
</html>
`))

func renderOrderPlaced(order models.Order) (string, error) {
	var buf bytes.Buffer
	if err := orderPlacedTemplate.Execute(&buf, order); err != nil {
		return "", err
	}
	return buf.String(), nil
}
