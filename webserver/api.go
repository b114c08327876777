package webserver

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func (ws *WebServer) health(w http.ResponseWriter, r *http.Request) {
	apiReturnOk(w)
}

func (ws *WebServer) getStatus(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getStatus")

	apiReturnJSON(w, ws.status())
}

func (ws *WebServer) listEpochs(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - listEpochs")

	apiReturnJSON(w, map[string]interface{}{
		"epochs": ws.ledger.AllEpochStates(),
	})
}

func (ws *WebServer) getEpoch(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getEpoch")

	date := mux.Vars(r)["date"]

	state := ws.ledger.EpochState(date)
	if state == nil {
		apiNotFound(errors.Errorf("No epoch record for '%s'", date), w)

		return
	}

	apiReturnJSON(w, state)
}

func (ws *WebServer) getEpochStats(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getEpochStats")

	date := mux.Vars(r)["date"]

	stats := ws.ledger.EpochStatistics(date)
	if stats == nil {
		apiNotFound(errors.Errorf("No epoch record for '%s'", date), w)

		return
	}

	apiReturnJSON(w, stats)
}

func (ws *WebServer) getCurrentEpoch(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getCurrentEpoch")

	info, err := ws.ledger.CurrentEpochInfo()
	if err != nil {
		log.WithError(err).Error("API - getCurrentEpoch")
		apiError(errors.Wrap(err, "Unable to read current epoch"), w)

		return
	}

	// Durations marshal as nanoseconds; give the UI whole seconds
	apiReturnJSON(w, map[string]interface{}{
		"epoch":              info.Epoch,
		"cycleNumber":        info.CycleNumber,
		"nextCycleInSeconds": int(info.NextCycleIn.Seconds()),
	})
}

func (ws *WebServer) getTax(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getTax")

	apiReturnJSON(w, ws.tax.TaxStatistics())
}
