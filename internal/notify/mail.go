package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"leadgen-platform/internal/config"

	"gopkg.in/gomail.v2"
)

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<p>Hi {{.AttendeeName}},</p>
<p>Thanks for speaking with us. Your {{.MeetingType}} meeting with {{.BusinessName}} is booked for
<strong>{{.ScheduledTime.Format "Monday, January 2 2006 at 15:04 MST"}}</strong> ({{.DurationMinutes}} minutes).</p>
{{if .Notes}}<p>{{.Notes}}</p>{{end}}
<p>If this time no longer works, just reply to this email.</p>`))

// MailSender delivers confirmation emails over SMTP.
type MailSender struct {
	from string
	send func(m *gomail.Message) error
}

func NewMailSender(cfg config.SMTPConfig) *MailSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	return &MailSender{from: cfg.From, send: func(m *gomail.Message) error { return d.DialAndSend(m) }}
}

func (s *MailSender) SendAppointmentConfirmation(ctx context.Context, e AppointmentBooked) error {
	m, err := s.confirmation(e)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.send(m); err != nil {
		return fmt.Errorf("send smtp: %w", err)
	}
	return nil
}

func (s *MailSender) confirmation(e AppointmentBooked) (*gomail.Message, error) {
	var body bytes.Buffer
	if err := confirmationTmpl.Execute(&body, e); err != nil {
		return nil, fmt.Errorf("render confirmation: %w", err)
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", e.AttendeeEmail, e.AttendeeName)
	m.SetHeader("Subject", fmt.Sprintf("Your meeting with %s is confirmed", e.BusinessName))
	m.SetBody("text/html", body.String())
	return m, nil
}
