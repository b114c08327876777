// Package notifications fans pipeline events out to the operator:
// distribution summaries, rollovers worth knowing about, and cycle
// failures. Notifier configs live in storage and are editable from the
// web UI at runtime.
package notifications

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"nukebot/storage"
)

const (
	TELEGRAM = "telegram"
	EMAIL    = "email"
)

type Notifier interface {
	Send(message string) error
	IsEnabled() bool
}

type Handler struct {
	db *storage.Storage

	mu        sync.RWMutex
	notifiers map[string]Notifier
}

func NewHandler(db *storage.Storage) (*Handler, error) {

	h := &Handler{
		db:        db,
		notifiers: make(map[string]Notifier, 2),
	}

	// Configure from stored settings; a missing config leaves the
	// notifier present but disabled
	for _, name := range []string{TELEGRAM, EMAIL} {

		config, err := db.GetNotifiersConfig(name)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to load %s notifier config", name)
		}

		if err := h.Configure(name, config, false); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// Configure replaces a notifier from a JSON config blob, from storage at
// startup or from the web UI. save persists the new config.
func (h *Handler) Configure(name string, config []byte, save bool) error {

	h.mu.Lock()
	defer h.mu.Unlock()

	switch name {
	case TELEGRAM:
		nt, err := newTelegram(h.db, config)
		if err != nil {
			return err
		}
		if save {
			if err := nt.saveConfig(); err != nil {
				return err
			}
		}
		h.notifiers[TELEGRAM] = nt

	case EMAIL:
		ne, err := newEmail(h.db, config)
		if err != nil {
			return err
		}
		if save {
			if err := ne.saveConfig(); err != nil {
				return err
			}
		}
		h.notifiers[EMAIL] = ne

	default:
		return errors.Errorf("Unknown notifier '%s'", name)
	}

	return nil
}

// Notify sends a message through every enabled notifier. Delivery is best
// effort; failures are logged and never bubble into the cycle.
func (h *Handler) Notify(message string) {

	h.mu.RLock()
	defer h.mu.RUnlock()

	for name, notifier := range h.notifiers {

		if !notifier.IsEnabled() {
			continue
		}

		if err := notifier.Send(message); err != nil {
			log.WithError(err).WithField("Notifier", name).Error("Unable to send notification")
		}
	}
}

// Enabled reports whether a named notifier is configured and switched on.
func (h *Handler) Enabled(name string) bool {

	h.mu.RLock()
	defer h.mu.RUnlock()

	notifier, found := h.notifiers[name]
	return found && notifier.IsEnabled()
}

// TestSend pushes a message through one named notifier and reports the
// failure, for the settings UI's test button.
func (h *Handler) TestSend(name, message string) error {

	h.mu.RLock()
	notifier, found := h.notifiers[name]
	h.mu.RUnlock()

	if !found {
		return errors.Errorf("Unknown notifier '%s'", name)
	}
	if !notifier.IsEnabled() {
		return errors.Errorf("Notifier '%s' is not enabled", name)
	}

	return notifier.Send(message)
}

// GetConfig marshals the live notifiers as the current settings document.
// RawMessage so the caller does not double-encode.
func (h *Handler) GetConfig() (json.RawMessage, error) {

	h.mu.RLock()
	defer h.mu.RUnlock()

	bts, err := json.Marshal(h.notifiers)
	return json.RawMessage(bts), err
}
