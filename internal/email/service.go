package email

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"gopkg.in/gomail.v2"

	"github.com/devflow/devflow-api/pkg/logger"
)

// Sender delivers one HTML email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends through gomail. Consecutive failures open a circuit
// breaker so a dead relay fails fast instead of stalling delivery.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	cb     *gobreaker.CircuitBreaker
}

func NewSMTPSender(cfg SMTPConfig, log *logger.Logger) *SMTPSender {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		cb:     cb,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.dialer.DialAndSend(m)
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// LogSender stands in when SMTP is disabled.
type LogSender struct {
	logger *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{logger: log.With("email")}
}

func (s *LogSender) Send(_ context.Context, to, subject, _ string) error {
	s.logger.Info("email delivery disabled, dropping message", "to", to, "subject", subject)
	return nil
}
