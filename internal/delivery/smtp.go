package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pagepress/internal/models"
)

// DefaultMaxMessageBytes is the encoded message ceiling common to consumer
// mail providers.
const DefaultMaxMessageBytes = 35 << 20

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	From     string
	To       []string
	Subject  string
	// Auth is "xoauth2" (token is an OAuth access token) or "plain"
	// (token is the password).
	Auth            string
	MaxMessageBytes int
	Timeout         time.Duration
}

// SMTPTransport sends each batch as one multipart/mixed message.
type SMTPTransport struct {
	cfg SMTPConfig
	now func() time.Time
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Subject == "" {
		cfg.Subject = "pagepress delivery"
	}
	return &SMTPTransport{cfg: cfg, now: time.Now}
}

func (t *SMTPTransport) Send(ctx context.Context, token string, batch []models.Artifact) error {
	if len(t.cfg.To) == 0 {
		return errors.New("delivery: no recipients configured")
	}
	msg, err := t.compose(batch)
	if err != nil {
		return err
	}
	if len(msg) > t.cfg.MaxMessageBytes {
		return fmt.Errorf("%w: encoded message is %d bytes (max %d)", ErrSizeLimit, len(msg), t.cfg.MaxMessageBytes)
	}
	return classifySMTPError(t.transmit(ctx, token, msg))
}

// compose renders the message with base64 attachments.
func (t *SMTPTransport) compose(batch []models.Artifact) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	var names []string
	for _, a := range batch {
		names = append(names, a.Filename)
	}
	text := textproto.MIMEHeader{}
	text.Set("Content-Type", "text/plain; charset=utf-8")
	text.Set("Content-Transfer-Encoding", "7bit")
	pw, err := mw.CreatePart(text)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(pw, "%d attachment(s):\r\n", len(batch))
	for _, n := range names {
		fmt.Fprintf(pw, "- %s\r\n", asciiOnly(n))
	}

	for _, a := range batch {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", mime.FormatMediaType(a.MimeType, map[string]string{"name": a.Filename}))
		h.Set("Content-Transfer-Encoding", "base64")
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
		pw, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if err := writeBase64Lines(pw, a.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	hdr := func(k, v string) { fmt.Fprintf(&msg, "%s: %s\r\n", k, v) }
	hdr("From", t.cfg.From)
	hdr("To", strings.Join(t.cfg.To, ", "))
	hdr("Subject", mime.QEncoding.Encode("utf-8", t.cfg.Subject))
	hdr("Date", t.now().Format(time.RFC1123Z))
	hdr("MIME-Version", "1.0")
	hdr("Content-Type", `multipart/mixed; boundary="`+mw.Boundary()+`"`)
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func writeBase64Lines(w io.Writer, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 76 {
		if _, err := w.Write([]byte(enc[:76] + "\r\n")); err != nil {
			return err
		}
		enc = enc[76:]
	}
	_, err := w.Write([]byte(enc + "\r\n"))
	return err
}

func asciiOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return '?'
		}
		return r
	}, s)
}

func (t *SMTPTransport) transmit(ctx context.Context, token string, msg []byte) error {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("delivery: dial %s: %w", addr, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	} else {
		conn.SetDeadline(time.Now().Add(t.cfg.Timeout))
	}

	c, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("delivery: smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: t.cfg.Host}); err != nil {
			return fmt.Errorf("delivery: starttls: %w", err)
		}
	}
	if token != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(t.auth(token)); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(t.cfg.From); err != nil {
		return err
	}
	for _, rcpt := range t.cfg.To {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (t *SMTPTransport) auth(token string) smtp.Auth {
	if strings.EqualFold(t.cfg.Auth, "plain") {
		return smtp.PlainAuth("", t.cfg.Username, token, t.cfg.Host)
	}
	return &xoauth2{username: t.cfg.Username, token: token}
}

// xoauth2 implements the SASL XOAUTH2 mechanism.
type xoauth2 struct {
	username string
	token    string
}

func (a *xoauth2) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	return "XOAUTH2", []byte("user=" + a.username + "\x01auth=Bearer " + a.token + "\x01\x01"), nil
}

func (a *xoauth2) Next(_ []byte, more bool) ([]byte, error) {
	if more {
		// error challenge; an empty reply yields the final status
		return []byte{}, nil
	}
	return nil, nil
}

// classifySMTPError maps SMTP reply codes onto ErrSizeLimit and
// ErrUnauthorized.
func classifySMTPError(err error) error {
	if err == nil {
		return nil
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 552, 523:
			return fmt.Errorf("%w: %v", ErrSizeLimit, err)
		case 530, 534, 535:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
	}
	return err
}

// MailtoRecipients parses a comma separated recipient list, accepting
// "mailto:" prefixes.
func MailtoRecipients(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(strings.ToLower(part), "mailto:") {
			if u, err := url.Parse(part); err == nil {
				part = u.Opaque
			}
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
