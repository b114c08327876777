package webserver

import (
	"encoding/json"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"nukebot/storage"
)

// Only the operator-managed lists are editable over the API; the bot's
// own wallets and the pool vaults are excluded in code.
func eligibilityList(r *http.Request) (string, error) {

	list := mux.Vars(r)["list"]

	switch list {
	case storage.EXCLUDED_BUCKET, storage.BLACKLIST_BUCKET:
		return list, nil
	}

	return "", errors.Errorf("Unknown eligibility list '%s'", list)
}

func (ws *WebServer) listEligibility(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - listEligibility")

	list, err := eligibilityList(r)
	if err != nil {
		apiError(err, w)

		return
	}

	wallets, err := ws.db.GetEligibilityWallets(list)
	if err != nil {
		log.WithError(err).Error("API - listEligibility")
		apiError(errors.Wrap(err, "Unable to read eligibility list"), w)

		return
	}

	apiReturnJSON(w, map[string]interface{}{
		"list":    list,
		"wallets": wallets,
	})
}

func (ws *WebServer) addEligibility(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - addEligibility")

	list, err := eligibilityList(r)
	if err != nil {
		apiError(err, w)

		return
	}

	wallet, err := decodeWalletBody(r)
	if err != nil {
		apiError(err, w)

		return
	}

	if err := ws.db.AddEligibilityWallet(list, wallet); err != nil {
		log.WithError(err).Error("API - addEligibility")
		apiError(errors.Wrap(err, "Unable to add wallet to list"), w)

		return
	}

	log.WithFields(log.Fields{
		"List": list, "Wallet": wallet,
	}).Info("Excluded wallet from rewards")

	apiReturnOk(w)
}

func (ws *WebServer) removeEligibility(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - removeEligibility")

	list, err := eligibilityList(r)
	if err != nil {
		apiError(err, w)

		return
	}

	wallet, err := decodeWalletBody(r)
	if err != nil {
		apiError(err, w)

		return
	}

	if err := ws.db.RemoveEligibilityWallet(list, wallet); err != nil {
		log.WithError(err).Error("API - removeEligibility")
		apiError(errors.Wrap(err, "Unable to remove wallet from list"), w)

		return
	}

	log.WithFields(log.Fields{
		"List": list, "Wallet": wallet,
	}).Info("Restored wallet to rewards")

	apiReturnOk(w)
}

// decodeWalletBody reads {"wallet": "<base58>"} and validates the address
// before it can reach storage.
func decodeWalletBody(r *http.Request) (string, error) {

	k := make(map[string]string)

	if err := json.NewDecoder(r.Body).Decode(&k); err != nil {
		return "", errors.Wrap(err, "Cannot decode body for wallet")
	}

	wallet, err := solana.PublicKeyFromBase58(k["wallet"])
	if err != nil {
		return "", errors.Wrapf(err, "Invalid wallet address '%s'", k["wallet"])
	}

	return wallet.String(), nil
}
