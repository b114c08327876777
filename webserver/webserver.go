// Package webserver serves the operator API: epoch and tax history,
// live status, eligibility list admin, and notification settings. It only
// talks to the rest of the bot through read accessors and the two
// explicit admin surfaces.
package webserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"nukebot/epochs"
	"nukebot/notifications"
	"nukebot/storage"
	"nukebot/tax"
)

// EpochSource is the slice of the epoch ledger the API reads.
type EpochSource interface {
	CurrentEpochInfo() (epochs.EpochInfo, error)
	EpochState(date string) *epochs.EpochState
	AllEpochStates() []*epochs.EpochState
	EpochStatistics(date string) *epochs.Stats
}

// TaxSource exposes the distribution counters.
type TaxSource interface {
	TaxStatistics() *tax.TaxState
}

type WebServerArgs struct {
	Network string
	Version string

	Storage             *storage.Storage
	NotificationHandler *notifications.Handler
	Ledger              EpochSource
	Tax                 TaxSource
	Status              func() interface{}

	BindAddr string
	BindPort int

	ShutdownChannel <-chan interface{}
	WG              *sync.WaitGroup
}

type WebServer struct {
	network string
	version string

	db        *storage.Storage
	notifiers *notifications.Handler
	ledger    EpochSource
	tax       TaxSource
	status    func() interface{}

	httpSvr *http.Server
}

func Start(args WebServerArgs) (*WebServer, error) {

	ws := &WebServer{
		network:   args.Network,
		version:   args.Version,
		db:        args.Storage,
		notifiers: args.NotificationHandler,
		ledger:    args.Ledger,
		tax:       args.Tax,
		status:    args.Status,
	}

	// The UI may be served from another origin during development
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	httpAddr := fmt.Sprintf("%s:%d", args.BindAddr, args.BindPort)
	ws.httpSvr = &http.Server{
		Handler:      cors(ws.router()),
		Addr:         httpAddr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	log.WithField("Addr", httpAddr).Info("NukeBot API listening")

	go func() {
		if err := ws.httpSvr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Httpserver: ListenAndServe()")
		}
	}()

	// Wait for shutdown signal on channel
	go func() {
		defer args.WG.Done()

		<-args.ShutdownChannel

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ws.httpSvr.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Httpserver: Shutdown()")
		}

		log.Info("Httpserver: Shutdown")
	}()

	return ws, nil
}

func (ws *WebServer) router() *mux.Router {

	router := mux.NewRouter()

	router.HandleFunc("/api/health", ws.health).Methods(http.MethodGet)
	router.HandleFunc("/api/status", ws.getStatus).Methods(http.MethodGet)

	router.HandleFunc("/api/epochs", ws.listEpochs).Methods(http.MethodGet)
	router.HandleFunc("/api/epochs/{date}", ws.getEpoch).Methods(http.MethodGet)
	router.HandleFunc("/api/epochs/{date}/stats", ws.getEpochStats).Methods(http.MethodGet)
	router.HandleFunc("/api/epoch/current", ws.getCurrentEpoch).Methods(http.MethodGet)

	router.HandleFunc("/api/tax", ws.getTax).Methods(http.MethodGet)

	router.HandleFunc("/api/eligibility/{list}", ws.listEligibility).Methods(http.MethodGet)
	router.HandleFunc("/api/eligibility/{list}", ws.addEligibility).Methods(http.MethodPost)
	router.HandleFunc("/api/eligibility/{list}", ws.removeEligibility).Methods(http.MethodDelete)

	router.HandleFunc("/api/settings/notifications", ws.getNotificationSettings).Methods(http.MethodGet)
	router.HandleFunc("/api/settings/notifications/{notifier}", ws.saveNotificationSettings).Methods(http.MethodPost)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return router
}

type apiErrorResponse struct {
	Error string `json:"error"`
}

func apiError(err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	if encErr := json.NewEncoder(w).Encode(apiErrorResponse{Error: err.Error()}); encErr != nil {
		log.WithError(encErr).Error("UI Return Encode Failure")
	}
}

func apiNotFound(err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)

	if encErr := json.NewEncoder(w).Encode(apiErrorResponse{Error: err.Error()}); encErr != nil {
		log.WithError(encErr).Error("UI Return Encode Failure")
	}
}

func apiReturnOk(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(map[string]bool{"ok": true}); err != nil {
		log.WithError(err).Error("UI Return Encode Failure")
	}
}

func apiReturnJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Error("UI Return Encode Failure")
	}
}
