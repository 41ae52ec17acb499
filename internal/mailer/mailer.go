// Package mailer delivers one-time codes over SMTP.
package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/zealicon/zealicon-backend/internal/config"
)

// Sender is the outbound-mail capability the OTP flow consumes. Implemented
// by SMTPSender in production and by fakes in tests.
type Sender interface {
	Send(to string, code int) error
}

// SMTPSender sends OTP mails through a configured SMTP account.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	name   string
}

// New builds an SMTPSender from the mail section of the config.
func New(cfg config.Config) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.MailerUser, cfg.MailerPass),
		from:   cfg.MailerUser,
		name:   cfg.MailerName,
	}
}

// Send mails the code to the given address. The validity window mentioned
// in the mail matches config.OTPExpiresMin.
func (s *SMTPSender) Send(to string, code int) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.name)
	m.SetHeader("To", to)
	m.SetHeader("Subject", fmt.Sprintf("Your OTP (valid for %d minutes)", config.OTPExpiresMin))
	m.SetBody("text/plain", fmt.Sprintf("Your OTP is: %d", code))
	m.AddAlternative("text/html", fmt.Sprintf(`
      <div style="font-family: Helvetica,Arial,sans-serif; line-height: 2;">
        <div style="margin: 50px auto; width: 70%%; padding: 20px 0;">
          <div style="border-bottom: 1px solid #eee;">
            <span style="font-size: 1.4em; color: #00466a; font-weight: 600;">%s</span>
          </div>
          <p style="font-size: 1.1em;">Hi,</p>
          <p>Use the following OTP to complete your sign-up process. This OTP is valid for %d minutes.</p>
          <h2 style="background: #00466a; margin: 0 auto; width: max-content; padding: 0 10px; color: #fff; border-radius: 4px;">%d</h2>
          <p style="font-size: 0.9em;">Regards,<br/>Team %s</p>
        </div>
      </div>`, s.name, config.OTPExpiresMin, code, s.name))
	return s.dialer.DialAndSend(m)
}
