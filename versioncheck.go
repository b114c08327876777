package main

import (
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	VERSION_URL = "https://nuketoken.github.io/nukebot/version.json"
)

type Versions []Version

type Version struct {
	Date    time.Time `json:"date"`
	Version string    `json:"version"`
	Notes   string    `json:"notes"`
}

func (s *NukeBotServer) RunVersionCheck() {

	// Check every 12hrs
	ticker := time.NewTicker(12 * time.Hour)

	for {

		s.checkVersion()

		// wait here for next iteration
		<-ticker.C
	}
}

func (s *NukeBotServer) checkVersion() {

	versions := Versions{}

	log.Info("Checking version...")

	// HTTP client 10s timeout
	client := &http.Client{
		Timeout: time.Second * 10,
	}

	resp, err := client.Get(VERSION_URL)
	if err != nil {
		log.WithError(err).Error("Unable to get version update")
		return
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&versions); err != nil {
		log.WithError(err).Error("Unable to parse version update")
		return
	}

	for _, v := range versions {
		log.WithFields(log.Fields{
			"Date": v.Date, "Version": v.Version, "Notes": v.Notes,
		}).Info("Version Update")
	}

	// Only the newest release is worth a ping
	if len(versions) > 0 && versions[0].Version != version && s.Handler != nil {
		s.Handler.Notify("NukeBot " + versions[0].Version + " is available: " + versions[0].Notes)
	}
}
