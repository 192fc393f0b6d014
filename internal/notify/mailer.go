package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer renders notification messages and sends them over SMTP.
type Mailer struct {
	cfg  config.SMTPConfig
	send sendFunc
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg, send: smtp.SendMail}
}

var subjects = map[Kind]string{
	KindPaymentConfirmation: "Payment confirmed for order {{.OrderNumber}}",
	KindAdminPayment:        "New paid order {{.OrderNumber}}",
	KindPaymentFailed:       "Order {{.OrderNumber}} was not completed",
	KindOrderProcessing:     "Order {{.OrderNumber}} is being prepared",
	KindOrderShipped:        "Order {{.OrderNumber}} has shipped",
	KindOrderDelivered:      "Order {{.OrderNumber}} was delivered",
}

var bodies = template.Must(template.New("mail").Funcs(template.FuncMap{"amount": FormatAmount}).Parse(`
{{define "payment_confirmation"}}<p>Hi {{.CustomerName}},</p>
<p>We received your payment of {{amount .Amount}} for order <b>{{.OrderNumber}}</b>.</p>
{{if .AuthorizationCode}}<p>Authorization code: {{.AuthorizationCode}}</p>{{end}}{{end}}
{{define "payment_admin_notification"}}<p>Order <b>{{.OrderNumber}}</b> (#{{.OrderID}}) was paid: {{amount .Amount}}.</p>
<p>Customer: {{.CustomerName}} &lt;{{.CustomerEmail}}&gt;</p>{{end}}
{{define "payment_failed"}}<p>Hi {{.CustomerName}},</p>
<p>Order <b>{{.OrderNumber}}</b> was not completed{{if .Reason}}: {{.Reason}}{{end}}.</p>{{end}}
{{define "order_processing"}}<p>Hi {{.CustomerName}}, order <b>{{.OrderNumber}}</b> is being prepared.</p>{{end}}
{{define "order_shipped"}}<p>Hi {{.CustomerName}}, order <b>{{.OrderNumber}}</b> is on its way.</p>{{end}}
{{define "order_delivered"}}<p>Hi {{.CustomerName}}, order <b>{{.OrderNumber}}</b> was delivered.</p>{{end}}
`))

var amountPrinter = message.NewPrinter(language.MustParse("es-CL"))

// FormatAmount renders integer pesos with local digit grouping.
func FormatAmount(v int64) string {
	return "$" + amountPrinter.Sprintf("%d", v)
}

// Render returns the subject and HTML body for m.
func Render(m Message) (subject, body string, err error) {
	subj, ok := subjects[m.Kind]
	if !ok {
		return "", "", fmt.Errorf("unknown notification kind %q", m.Kind)
	}
	subject = strings.ReplaceAll(subj, "{{.OrderNumber}}", m.OrderNumber)

	var buf bytes.Buffer
	if err := bodies.ExecuteTemplate(&buf, string(m.Kind), m); err != nil {
		return "", "", fmt.Errorf("render %s: %w", m.Kind, err)
	}
	return subject, strings.TrimSpace(buf.String()), nil
}

func (m *Mailer) Notify(_ context.Context, msg Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("mail %s for %s: no recipient", msg.Kind, msg.OrderNumber)
	}
	subject, body, err := Render(msg)
	if err != nil {
		return err
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(body)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.send(addr, auth, m.cfg.From, []string{msg.Recipient}, b.Bytes()); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Kind, msg.Recipient, err)
	}
	return nil
}
