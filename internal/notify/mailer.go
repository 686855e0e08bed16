package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/tasker-api/internal/config"
	"github.com/phrazzld/tasker-api/internal/platform/logger"
)

// Mail drivers accepted by NewMailer.
const (
	DriverSMTP = "smtp"
	DriverLog  = "log"
)

var (
	// ErrNoRecipient is returned when a message has no usable To address.
	ErrNoRecipient = errors.New("message has no recipient")

	// ErrUnsupportedDriver is returned for an unknown mail driver.
	ErrUnsupportedDriver = errors.New("unsupported mail driver")
)

// Message is a plain-text email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Mailer delivers a message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer builds the Mailer selected by cfg.Driver.
func NewMailer(cfg config.MailConfig, log *slog.Logger) (Mailer, error) {
	from := mail.Address{Name: cfg.FromName, Address: cfg.FromAddress}
	switch cfg.Driver {
	case DriverSMTP:
		return NewSMTPMailer(cfg.Host, cfg.Port, cfg.Username, cfg.Password, from), nil
	case DriverLog:
		return NewLogMailer(from, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer delivers mail through an SMTP relay. Auth is PLAIN and only
// used when a username is configured.
type SMTPMailer struct {
	addr     string
	host     string
	username string
	password string
	from     mail.Address
	send     sendFunc
	now      func() time.Time
}

// NewSMTPMailer creates an SMTPMailer for host:port. A zero port means 587.
func NewSMTPMailer(host string, port int, username, password string, from mail.Address) *SMTPMailer {
	if port == 0 {
		port = 587
	}
	return &SMTPMailer{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		host:     host,
		username: username,
		password: password,
		from:     from,
		send:     smtp.SendMail,
		now:      time.Now,
	}
}

// Send implements Mailer. net/smtp does not take a context, so ctx is only
// checked before the connection is opened.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to, err := recipient(msg)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	data := render(m.from, to, msg, m.now())
	if err := m.send(m.addr, auth, m.from.Address, []string{to.Address}, data); err != nil {
		return fmt.Errorf("failed to send mail via %s: %w", m.addr, err)
	}
	return nil
}

// LogMailer writes messages to the log instead of delivering them. It keeps
// every message it was given so tests can inspect them.
type LogMailer struct {
	from   mail.Address
	logger *slog.Logger

	mu   sync.Mutex
	sent []Message
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(from mail.Address, log *slog.Logger) *LogMailer {
	if log == nil {
		log = slog.Default()
	}
	return &LogMailer{
		from:   from,
		logger: log.With("component", "log_mailer"),
	}
}

// Send implements Mailer.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	to, err := recipient(msg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()

	logger.FromContextOrDefault(ctx, m.logger).Info("mail sent",
		"from", m.from.String(),
		"to", to.String(),
		"subject", msg.Subject,
		"body", msg.Body)
	return nil
}

// Sent returns a copy of the messages sent so far.
func (m *LogMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

func recipient(msg Message) (*mail.Address, error) {
	if strings.TrimSpace(msg.To) == "" {
		return nil, ErrNoRecipient
	}
	addr, err := mail.ParseAddress(msg.To)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRecipient, err)
	}
	if msg.ToName != "" {
		addr.Name = msg.ToName
	}
	return addr, nil
}

func render(from mail.Address, to *mail.Address, msg Message, now time.Time) []byte {
	var buf bytes.Buffer
	header := func(k, v string) {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(v)
		buf.WriteString("\r\n")
	}
	header("From", from.String())
	header("To", to.String())
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return buf.Bytes()
}
