package notifications

import (
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"nukebot/storage"
)

type Email struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	SMTPHost string   `json:"smtpHost"`
	SMTPPort int      `json:"smtpPort"`
	From     string   `json:"from"`
	To       []string `json:"to"`
	Enabled  bool     `json:"enabled"`

	db *storage.Storage
}

func newEmail(db *storage.Storage, config []byte) (*Email, error) {

	ne := &Email{db: db}

	if config != nil {
		if err := json.Unmarshal(config, ne); err != nil {
			return nil, errors.Wrap(err, "Unable to parse email config")
		}
	}

	if ne.SMTPPort == 0 {
		ne.SMTPPort = 587
	}

	return ne, nil
}

func (e *Email) IsEnabled() bool {
	return e.Enabled && e.SMTPHost != "" && e.From != "" && len(e.To) > 0
}

// Send mails the message to the configured recipients. The first line
// doubles as the subject.
func (e *Email) Send(message string) error {

	addr := fmt.Sprintf("%s:%d", e.SMTPHost, e.SMTPPort)

	var auth smtp.Auth
	if e.Username != "" {
		auth = smtp.PlainAuth("", e.Username, e.Password, e.SMTPHost)
	}

	subject := message
	if idx := strings.IndexByte(message, '\n'); idx > 0 {
		subject = message[:idx]
	}

	payload := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		e.From, strings.Join(e.To, ", "), subject, message)

	if err := smtp.SendMail(addr, auth, e.From, e.To, []byte(payload)); err != nil {
		return errors.Wrap(err, "Unable to send notification email")
	}

	log.WithField("Recipients", len(e.To)).Debug("Sent email notification")
	return nil
}

func (e *Email) saveConfig() error {

	config, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "Unable to encode email config")
	}

	if err := e.db.SaveNotifiersConfig(EMAIL, config); err != nil {
		return errors.Wrap(err, "Unable to save email config")
	}

	return nil
}
