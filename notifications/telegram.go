package notifications

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"nukebot/storage"
)

const telegramAPIBase = "https://api.telegram.org"

type Telegram struct {
	ChatIDs []int  `json:"chatIds"`
	APIKey  string `json:"apiKey"`
	Enabled bool   `json:"enabled"`

	db      *storage.Storage
	apiBase string
}

// newTelegram builds a notifier from a JSON config blob, from DB lookup or
// the web UI. A nil blob means never configured: the notifier exists but
// IsEnabled is false until the operator fills it in.
func newTelegram(db *storage.Storage, config []byte) (*Telegram, error) {

	nt := &Telegram{db: db}

	if config != nil {
		if err := json.Unmarshal(config, nt); err != nil {
			return nil, errors.Wrap(err, "Unable to parse telegram config")
		}
	}

	return nt, nil
}

func (t *Telegram) IsEnabled() bool {
	return t.Enabled && t.APIKey != "" && len(t.ChatIDs) > 0
}

// Send delivers the message to every configured chat.
//
//	curl -G \
//	 --data-urlencode "chat_id=111112233" \
//	 --data-urlencode "text=$message" \
//	 https://api.telegram.org/bot${TOKEN}/sendMessage
func (t *Telegram) Send(message string) error {

	client := &http.Client{Timeout: 10 * time.Second}

	base := t.apiBase
	if base == "" {
		base = telegramAPIBase
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", base, t.APIKey)

	var failed []string
	for _, chatID := range t.ChatIDs {
		if err := sendToChat(client, endpoint, chatID, message); err != nil {
			log.WithError(err).WithField("ChatId", chatID).Error("Unable to send telegram message")
			failed = append(failed, strconv.Itoa(chatID))
		}
	}

	if len(failed) > 0 {
		return errors.Errorf("Telegram delivery failed for chats %s", strings.Join(failed, ", "))
	}

	log.WithField("Chats", len(t.ChatIDs)).Debug("Sent telegram notification")
	return nil
}

func sendToChat(client *http.Client, endpoint string, chatID int, message string) error {

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "Unable to build telegram request")
	}

	q := req.URL.Query()
	q.Set("chat_id", strconv.Itoa(chatID))
	q.Set("text", message)
	req.URL.RawQuery = q.Encode()

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "Unable to reach telegram")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("Telegram returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	log.WithField("Resp", string(body)).Trace("Telegram reply")
	return nil
}

func (t *Telegram) saveConfig() error {

	config, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "Unable to encode telegram config")
	}

	if err := t.db.SaveNotifiersConfig(TELEGRAM, config); err != nil {
		return errors.Wrap(err, "Unable to save telegram config")
	}

	return nil
}
