package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"nukebot/config"
	"nukebot/epochs"
	"nukebot/metrics"
	"nukebot/notifications"
	"nukebot/raydium"
	"nukebot/solclient"
	"nukebot/storage"
	"nukebot/tax"
	"nukebot/util"
	"nukebot/wallet"
	"nukebot/webserver"
)

// Set at build time via -ldflags
var (
	version    = "1.0"
	commitHash = "dev"
)

var server *NukeBotServer

type NukeBotServer struct {
	*storage.Storage
	*notifications.Handler
	*webserver.WebServer
	*solclient.Client

	Config      *config.Config
	Wallet      *wallet.Wallet
	Ledger      *epochs.Ledger
	Coordinator *tax.Coordinator
	Status      *BotStatus

	Flags
}

// Flags Server flags
type Flags struct {
	networkName string
	logDebug    bool
	logTrace    bool
	dryRun      bool
	webUIAddr   string
	webUIPort   int
	dataDir     string
}

func main() {
	// Used throughout main
	var (
		err error
		wg  sync.WaitGroup
	)

	server = new(NukeBotServer)
	server.parseArgs()

	// Logging
	setupLogging(server.logDebug, server.logTrace, server.dataDir)

	// Clean exits
	shutdownChannel := setupCloseChannel()

	// Tunables: env + .env + network defaults
	server.Config, err = config.Load(server.networkName)
	if err != nil {
		log.WithError(err).Fatal("Could not load configuration")
	}

	// Open/Init database
	server.Storage, err = storage.InitStorage(server.dataDir, server.networkName)
	if err != nil {
		log.WithError(err).Fatal("Could not open storage")
	}

	// Start
	log.Infof("=== NukeBot v%s (%s) ===", version, commitHash)
	log.Infof("=== Network: %s ===", server.networkName)
	log.WithFields(log.Fields{
		"Mint": server.Config.Mint, "Pool": server.Config.PoolID,
	}).Info("Taxed token")

	// Global notifications handler
	server.Handler, err = notifications.NewHandler(server.Storage)
	if err != nil {
		log.WithError(err).Error("Unable to load notifiers")
	}

	// VERSION checking
	go server.RunVersionCheck()

	// Signing wallets
	server.Wallet, err = wallet.Init()
	if err != nil {
		log.WithError(err).Fatal("Could not load wallets")
	}

	// RPC access with failover
	server.Client = solclient.New(server.Config.RPCURL, server.Config.BackupRPCURL)

	// Venue API, swap router, price resolver
	venueAPI := raydium.NewAPI(server.Config.VenueAPIURL, server.Config.PoolID, server.Config.Mint)

	sendOpts := solclient.SendOptions{
		Retries:         server.Config.SendRetries,
		ConfirmPolls:    server.Config.ConfirmPolls,
		ConfirmInterval: server.Config.ConfirmPollInterval,
	}

	swapper := raydium.NewSwapper(server.Client, venueAPI,
		server.Config.Mint, server.Wallet.Operating(), server.Wallet.Signer,
		server.Config.SlippageBps, server.Config.MinSwapOutLamports, sendOpts)

	prices := raydium.NewPriceResolver(venueAPI, server.Config.Mint)

	// The bot's own wallets and the pool vaults never receive payouts
	alwaysExcluded := []solana.PublicKey{server.Wallet.Operating(), server.Wallet.Treasury()}
	if pool, err := venueAPI.PoolInfo(context.Background()); err != nil {
		log.WithError(err).Warn("Unable to read pool info at startup; vault accounts not pre-excluded")
	} else {
		alwaysExcluded = append(alwaysExcluded, pool.VaultA, pool.VaultB)
	}
	eligibility := tax.NewStorageEligibility(server.Storage, alwaysExcluded...)

	// Cycle ledger
	server.Ledger, err = epochs.NewLedger(server.Storage, server.Config.EpochRetentionDays)
	if err != nil {
		log.WithError(err).Fatal("Could not load epoch ledger")
	}

	// The pipeline coordinator
	server.Coordinator, err = tax.NewCoordinator(tax.CoordinatorConfig{
		Config:      server.Config,
		Chain:       server.Client,
		Swapper:     swapper,
		Prices:      prices,
		Eligibility: eligibility,
		Store:       server.Storage,
		Operating:   server.Wallet.Operating(),
		Treasury:    server.Wallet.Treasury(),
		Signer:      server.Wallet.Signer,
		SendOpts:    sendOpts,
	})
	if err != nil {
		log.WithError(err).Fatal("Could not create tax coordinator")
	}

	server.Status = NewBotStatus(server.networkName, version)
	metrics.SetBuildInfo(version, commitHash, server.networkName)

	// Start web API
	wg.Add(1)
	args := webserver.WebServerArgs{
		Network:             server.networkName,
		Version:             version,
		Storage:             server.Storage,
		NotificationHandler: server.Handler,
		Ledger:              server.Ledger,
		Tax:                 server.Coordinator,
		Status:              server.Status.Snapshot,
		BindAddr:            server.webUIAddr,
		BindPort:            server.webUIPort,
		ShutdownChannel:     shutdownChannel,
		WG:                  &wg,
	}
	server.WebServer, err = webserver.Start(args)
	if err != nil {
		log.WithError(err).Error()
		os.Exit(1)
	}

	runner := &cycleRunner{
		ledger:    server.Ledger,
		processor: server.Coordinator,
		notifiers: server.Handler,
		status:    server.Status,
		dryRun:    server.dryRun,
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	// The scheduler only fires the pipeline; cycle identity always comes
	// from wall-clock through the ledger. A buffered tick channel keeps
	// runs strictly sequential: a tick arriving while a cycle is still in
	// flight is dropped, and that slot shows up as a gap, never a retry.
	cycleTicks := make(chan time.Time, 1)

	scheduler := cron.New(cron.WithLocation(time.UTC))
	if _, err := scheduler.AddFunc("*/5 * * * *", func() {
		select {
		case cycleTicks <- time.Now():
		default:
			log.Warn("Previous cycle still running; dropping this slot")
		}
	}); err != nil {
		log.WithError(err).Fatal("Could not schedule tax cycles")
	}
	scheduler.Start()

	if info, err := server.Ledger.CurrentEpochInfo(); err == nil {
		log.WithFields(log.Fields{
			"Epoch": info.Epoch, "Cycle": info.CycleNumber, "NextCycleIn": info.NextCycleIn,
		}).Info("Waiting for first cycle")
	}

	// Loop forever, handling cycle ticks as the scheduler delivers them
Main:
	for {

		select {
		case <-cycleTicks:
			if err := runner.run(ctx); err != nil {
				log.WithError(err).Error("Tax cycle did not complete cleanly")
			}
			server.updateRunMetrics(ctx)

		case <-shutdownChannel:
			log.Warn("Shutting things down...")
			ctxCancel()
			<-scheduler.Stop().Done()
			break Main
		}
	}

	// Wait for threads to finish
	wg.Wait()

	// Clean close DB, logs
	server.Storage.Close()
	closeLogging()

	os.Exit(0)
}

// updateRunMetrics refreshes the ambient gauges after each cycle.
func (s *NukeBotServer) updateRunMetrics(ctx context.Context) {

	metrics.SetRPCOnPrimary(s.Client.OnPrimary())

	balance, err := s.Client.GetBalance(ctx, s.Wallet.Operating())
	if err != nil {
		log.WithError(err).Debug("Unable to refresh operating balance gauge")
		return
	}
	metrics.SetOperatingBalance(balance)
	s.Status.SetOperatingBalance(balance)
}

func setupCloseChannel() chan interface{} {

	// Create channels for signals
	signalChan := make(chan os.Signal, 1)
	closingChan := make(chan interface{}, 1)

	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalChan
		close(closingChan)
	}()

	return closingChan
}

func (s *NukeBotServer) parseArgs() {

	// Args
	flag.StringVar(&s.networkName, "network", util.NETWORK_MAINNET, fmt.Sprintf("Which network to use: %s", util.AvailableNetworks()))

	flag.BoolVar(&s.logDebug, "debug", false, "Enable debug-level logging")
	flag.BoolVar(&s.logTrace, "trace", false, "Enable trace-level logging")

	flag.BoolVar(&s.dryRun, "dry-run", false, "Evaluate each cycle, but don't harvest, swap, or distribute")

	flag.StringVar(&s.webUIAddr, "webuiaddr", "127.0.0.1", "Address on which to bind web API server")
	flag.IntVar(&s.webUIPort, "webuiport", 8082, "Port on which to bind web API server")

	flag.StringVar(&s.dataDir, "datadir", "./", "Location of database")

	printVersion := flag.Bool("version", false, "Show version and exit")

	flag.Parse()

	// Sanity
	if !util.IsValidNetwork(s.networkName) {
		log.Errorf("Unknown network: %s", s.networkName)
		flag.Usage()
		os.Exit(1)
	}

	// Handle print version and exit
	if *printVersion {
		log.Printf("NukeBot %s (%s)", version, commitHash)
		log.Printf("https://github.com/nuketoken/nukebot")
		os.Exit(0)
	}
}
