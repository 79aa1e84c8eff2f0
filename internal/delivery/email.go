// ABOUTME: Email transport and SMTP mailer for transactional replies
// ABOUTME: Bodies are sent as plain text plus goldmark-rendered HTML, with an optional attachment

package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/marcelomst/begaia-gateway/internal/store"
)

// Mail is one outgoing email
type Mail struct {
	To         string
	Subject    string
	Text       string
	Attachment *Attachment
}

// Mailer sends emails
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

var defaultSubjects = map[string]string{
	"es": "Tu consulta de reserva",
	"en": "Your booking enquiry",
	"pt": "Sua consulta de reserva",
}

// Email delivers replies by mail
type Email struct {
	mailer Mailer
}

// NewEmail creates the email transport
func NewEmail(mailer Mailer) *Email {
	return &Email{mailer: mailer}
}

func (e *Email) Send(ctx context.Context, t Target, msg *store.ChannelMessage, att *Attachment) error {
	if t.Recipient == "" {
		return errors.New("email recipient is empty")
	}
	if err := e.mailer.Send(ctx, Mail{
		To:         t.Recipient,
		Subject:    replySubject(t.Subject, t.Locale),
		Text:       msg.Content,
		Attachment: att,
	}); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

func replySubject(subject, locale string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		if s, ok := defaultSubjects[locale]; ok {
			return s
		}
		return defaultSubjects["es"]
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// SMTPMailer sends mail through an SMTP relay with STARTTLS when offered
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	now      func() time.Time
}

// NewSMTPMailer creates a mailer
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, username: username, password: password, from: from, now: time.Now}
}

// Send delivers one message. net/smtp has no context support; the relay's own timeouts apply.
func (s *SMTPMailer) Send(ctx context.Context, m Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := s.build(m)
	if err != nil {
		return err
	}
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	addr := s.host + ":" + strconv.Itoa(s.port)
	if err := smtp.SendMail(addr, auth, s.from, []string{m.To}, body); err != nil {
		return fmt.Errorf("smtp send to %s: %w", m.To, err)
	}
	return nil
}

// build renders the MIME message
func (s *SMTPMailer) build(m Mail) ([]byte, error) {
	var html bytes.Buffer
	if err := goldmark.Convert([]byte(m.Text), &html); err != nil {
		return nil, fmt.Errorf("rendering email body: %w", err)
	}

	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", s.from)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mixed.Boundary())

	var alt bytes.Buffer
	altWriter := multipart.NewWriter(&alt)
	if err := writePart(altWriter, "text/plain; charset=utf-8", []byte(m.Text), nil); err != nil {
		return nil, err
	}
	if err := writePart(altWriter, "text/html; charset=utf-8", html.Bytes(), nil); err != nil {
		return nil, err
	}
	if err := altWriter.Close(); err != nil {
		return nil, err
	}

	altHeader := textproto.MIMEHeader{}
	altHeader.Set("Content-Type", "multipart/alternative; boundary="+altWriter.Boundary())
	part, err := mixed.CreatePart(altHeader)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(alt.Bytes()); err != nil {
		return nil, err
	}

	if att := m.Attachment; att != nil {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename}))
		if err := writePart(mixed, att.MIME, att.Data, h); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePart(w *multipart.Writer, contentType string, data []byte, extra textproto.MIMEHeader) error {
	h := textproto.MIMEHeader{}
	for k, v := range extra {
		h[k] = v
	}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "base64")
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating mime part: %w", err)
	}
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 76 {
		if _, err := part.Write([]byte(enc[:76] + "\r\n")); err != nil {
			return err
		}
		enc = enc[76:]
	}
	_, err = part.Write([]byte(enc + "\r\n"))
	return err
}
