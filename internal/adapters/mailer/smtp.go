package mailer

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"

	"live-friends/internal/infra/metrics"
)

// Config описывает параметры SMTP.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTPMailer доставляет пейджи по электронной почте.
type SMTPMailer struct {
	client *gomail.Client
	from   string
}

// NewSMTP создаёт почтовый транспорт.
func NewSMTP(cfg Config) (*SMTPMailer, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(10 * time.Second),
	}
	if cfg.User != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.User),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	from := cfg.From
	if from == "" {
		from = "no-reply@example.com"
	}
	return &SMTPMailer{client: client, from: from}, nil
}

// SendPage отправляет письмо «вас пейджнули».
func (m *SMTPMailer) SendPage(ctx context.Context, toEmail, fromName, message string) error {
	if fromName == "" {
		fromName = "Someone"
	}
	body := message
	if body == "" {
		body = "You have been paged. Reply or hop on the map!"
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(fmt.Sprintf("%s paged you on Live Friends", fromName))
	msg.SetBodyString(gomail.TypeTextPlain, body)

	start := time.Now()
	err := m.client.DialAndSendWithContext(ctx, msg)
	metrics.ObserveNetworkRequest("smtp", "send", "page_email", start, err)
	if err != nil {
		metrics.MailDeliveryErrors.Inc()
		return fmt.Errorf("send page email: %w", err)
	}
	return nil
}
