package webserver

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func (ws *WebServer) getNotificationSettings(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getNotificationSettings")

	config, err := ws.notifiers.GetConfig()
	if err != nil {
		log.WithError(err).Error("API - getNotificationSettings")
		apiError(errors.Wrap(err, "Cannot get notification settings"), w)

		return
	}

	apiReturnJSON(w, map[string]interface{}{
		"notifications": config,
	})
}

func (ws *WebServer) saveNotificationSettings(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - saveNotificationSettings")

	notifier := mux.Vars(r)["notifier"]

	// Read the POST body as a string
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		log.WithError(err).Error("API - saveNotificationSettings")
		apiError(errors.Wrap(err, "Failed to parse body"), w)

		return
	}

	// Configure unmarshals the JSON and persists it
	if err := ws.notifiers.Configure(notifier, body, true); err != nil {
		log.WithError(err).Error("API - saveNotificationSettings")
		apiError(errors.Wrapf(err, "Failed to configure %s", notifier), w)

		return
	}

	// Prove the new config can actually deliver
	if ws.notifiers.Enabled(notifier) {
		if err := ws.notifiers.TestSend(notifier, "Test message from NukeBot"); err != nil {
			log.WithError(err).Error("API - saveNotificationSettings")
			apiError(errors.Wrapf(err, "Failed to execute %s test", notifier), w)

			return
		}
	}

	apiReturnOk(w)
}
