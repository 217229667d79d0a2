package email

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	gomail "gopkg.in/gomail.v2"
)

const (
	// DefaultHost is the relay used when the config doesn't name one
	DefaultHost = "smtp.qq.com"
	// DefaultPort is the SMTP-over-TLS submission port
	DefaultPort = 465
	// DefaultCharset is used when a Message doesn't specify one
	DefaultCharset = "utf-8"
)

var (
	// ErrNotConnected is returned when sending through a client without an
	// open session, either because Connect failed or the session was closed.
	ErrNotConnected = errors.New("no open SMTP session")
	// ErrUnsupportedFormat is returned for a Message whose Format isn't
	// Plain or HTML.
	ErrUnsupportedFormat = errors.New("unsupported message format")
)

// Format is the kind of body a Message carries
type Format string

const (
	Plain Format = "plain"
	HTML  Format = "html"
)

// contentType returns the MIME type for f. An empty Format means Plain.
func (f Format) contentType() (string, error) {
	switch Format(strings.ToLower(string(f))) {
	case "", Plain:
		return "text/plain", nil
	case HTML:
		return "text/html", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
	}
}

// UserConfig represents config options provided by the user. Not meant to be
// used directly for sending email without validation. The from address
// doubles as the AUTH username, as with most webmail providers.
type UserConfig struct {
	Host        string `yaml:"smtpServerHost"`
	Port        int    `yaml:"smtpServerPort"`
	FromAddress string `yaml:"fromAddress"`
	// App password or authorization code issued by the mail provider
	Password  string `yaml:"password"`
	ToAddress string `yaml:"toAddress"`
	// Only meant for testing against servers with self-signed certs
	SkipCertVerification bool `yaml:"skipCertVerification"`
}

// CheckAndSetDefaults validates uc and either returns a copy of uc with
// default settings applied or returns an error due to an invalid
// configuration
func (uc *UserConfig) CheckAndSetDefaults() (UserConfig, error) {
	if uc.FromAddress == "" || uc.ToAddress == "" {
		return UserConfig{}, errors.New("must supply a \"to\" address and a \"from\" address")
	}

	if uc.Password == "" {
		return UserConfig{}, errors.New("must supply a password")
	}

	c := *uc
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 0 || c.Port > 65535 {
		return UserConfig{}, fmt.Errorf("invalid SMTP port %v", c.Port)
	}
	return c, nil
}

// Message is a single email. Zero values for Format and Charset mean plain
// text in UTF-8.
type Message struct {
	Subject string
	Body    string
	Format  Format
	Charset string
}

// SMTPClient handles interactions with the SMTP relay. It is not safe for
// concurrent use.
type SMTPClient struct {
	dialer      *gomail.Dialer
	session     gomail.SendCloser
	FromAddress string
	ToAddress   string
}

// NewSMTPClient prepares a client for the relay in uc without opening a
// connection. Call Connect before sending.
func NewSMTPClient(uc UserConfig) *SMTPClient {
	d := gomail.NewDialer(uc.Host, uc.Port, uc.FromAddress, uc.Password)
	// Port 465 relays expect TLS from the first byte
	d.SSL = true
	d.TLSConfig = &tls.Config{
		ServerName:         uc.Host,
		InsecureSkipVerify: uc.SkipCertVerification,
	}

	return &SMTPClient{
		dialer:      d,
		FromAddress: uc.FromAddress,
		ToAddress:   uc.ToAddress,
	}
}

// Dial creates a client and connects it right away. The client is returned
// even when the connection fails so callers can hold on to it; in that case
// it is disabled and the error says why.
func Dial(uc UserConfig) (*SMTPClient, error) {
	sc := NewSMTPClient(uc)
	return sc, sc.Connect()
}

// Connect opens and authenticates a session, replacing any existing one. On
// failure the client is left disabled.
func (sc *SMTPClient) Connect() error {
	if sc.session != nil {
		sc.Close()
	}

	s, err := sc.dialer.Dial()
	if err != nil {
		log.Error().
			Str("host", sc.dialer.Host).
			Int("port", sc.dialer.Port).
			Str("from", sc.FromAddress).
			Err(err).
			Msg("can't log in to the SMTP server")
		return fmt.Errorf("can't connect to %v:%v: %w", sc.dialer.Host, sc.dialer.Port, err)
	}

	sc.session = s
	log.Debug().
		Str("host", sc.dialer.Host).
		Int("port", sc.dialer.Port).
		Msg("connected to the SMTP server")
	return nil
}

// Enabled reports whether the client has an open session to send with
func (sc *SMTPClient) Enabled() bool {
	return sc.session != nil
}

// Send transmits m from FromAddress to ToAddress over the open session. A
// lack of an error means the message was accepted by the relay. If closeAfter
// is true the session is ended afterwards, whatever the outcome, and later
// sends fail until Connect is called again.
//
// A disabled client logs a warning and returns ErrNotConnected without
// transmitting anything.
func (sc *SMTPClient) Send(m Message, closeAfter bool) error {
	if sc.session == nil {
		log.Warn().
			Str("subject", m.Subject).
			Msg("not sending email: log in to the SMTP server first")
		return ErrNotConnected
	}

	if closeAfter {
		defer func() {
			if cerr := sc.Close(); cerr != nil {
				log.Warn().Err(cerr).Msg("error closing the SMTP session")
			}
		}()
	}

	ct, err := m.Format.contentType()
	if err != nil {
		return err
	}

	cs := m.Charset
	if cs == "" {
		cs = DefaultCharset
	}

	msg := gomail.NewMessage(gomail.SetCharset(cs))
	msg.SetHeader("From", sc.FromAddress)
	msg.SetHeader("To", sc.ToAddress)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody(ct, m.Body)

	if err := gomail.Send(sc.session, msg); err != nil {
		return fmt.Errorf("can't send the email: %w", err)
	}
	return nil
}

// Close ends the session, if there is one. The client is disabled afterwards.
func (sc *SMTPClient) Close() error {
	if sc.session == nil {
		return nil
	}
	err := sc.session.Close()
	sc.session = nil
	return err
}
