package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"nukebot/epochs"
	"nukebot/metrics"
	"nukebot/tax"
	"nukebot/util"
)

// cycleLedger is the slice of the epoch ledger one cycle run needs.
type cycleLedger interface {
	CurrentEpochInfo() (epochs.EpochInfo, error)
	RecordResult(result epochs.CycleResult) error
}

// taxProcessor runs the harvest/swap/distribute pipeline. A nil result with
// a nil error means the cycle deferred (rolled over).
type taxProcessor interface {
	ProcessWithheldTax(ctx context.Context, epoch string, cycleNumber int) (*tax.Result, error)
}

type notifier interface {
	Notify(message string)
}

// cycleRunner executes one scheduled tax cycle end to end: stamp the run
// with its epoch/cycle identity, run the pipeline, and write exactly one
// CycleResult for it. Runs never overlap; main feeds the runner one tick
// at a time.
type cycleRunner struct {
	ledger    cycleLedger
	processor taxProcessor
	notifiers notifier
	status    *BotStatus
	dryRun    bool
}

func (r *cycleRunner) run(ctx context.Context) error {

	started := time.Now()

	info, err := r.ledger.CurrentEpochInfo()
	if err != nil {
		// Without a cycle identity there is nothing to record against;
		// losing the ledger is fatal for the slot
		log.WithError(err).Error("Unable to stamp cycle; skipping slot")
		return err
	}

	log.WithFields(log.Fields{
		"Epoch": info.Epoch, "Cycle": info.CycleNumber,
	}).Info("Starting tax cycle")

	if r.status != nil {
		r.status.SetCycle(info.Epoch, info.CycleNumber)
		r.status.SetState(STATE_RUNNING)
		defer r.status.SetState(STATE_WAITING)
	}

	if r.dryRun {
		log.Info("Dry-run: not harvesting; slot left unrecorded")
		return nil
	}

	taxResult, pipelineErr := r.processor.ProcessWithheldTax(ctx, info.Epoch, info.CycleNumber)

	result := epochs.CycleResult{
		Epoch:       info.Epoch,
		CycleNumber: info.CycleNumber,
		Timestamp:   time.Now().UTC(),
	}

	switch {
	case pipelineErr != nil:
		result.State = epochs.STATE_FAILED
		result.Error = pipelineErr.Error()
	case taxResult == nil:
		// Below threshold or nothing withheld; the amount rolls into the
		// next cycle's scan
		result.State = epochs.STATE_ROLLED_OVER
	default:
		result.State = epochs.STATE_DISTRIBUTED
	}

	// A failed audit write can still carry the amounts that moved
	if taxResult != nil {
		payload := &epochs.TaxResult{
			NukeHarvested:    taxResult.Harvested,
			SolToHolders:     taxResult.HolderShare,
			SolToTreasury:    taxResult.TreasuryShare,
			DistributedCount: len(taxResult.Distribution.Paid),
		}
		if n := len(taxResult.SwapSignatures); n > 0 {
			payload.SwapSignature = taxResult.SwapSignatures[n-1].String()
		}
		result.TaxResult = payload
	}

	if err := r.ledger.RecordResult(result); err != nil {
		// The audit trail outranks a green cycle; surface this loudly
		log.WithError(err).WithFields(log.Fields{
			"Epoch": info.Epoch, "Cycle": info.CycleNumber, "State": result.State,
		}).Error("FAILED TO RECORD CYCLE RESULT; audit history has a hole")
		return err
	}

	metrics.RecordCycle(strings.ToLower(result.State), time.Since(started))
	r.report(result, taxResult, pipelineErr)

	return pipelineErr
}

// report pushes the cycle outcome to metrics, status, and the operator.
func (r *cycleRunner) report(result epochs.CycleResult, taxResult *tax.Result, pipelineErr error) {

	if r.status != nil {
		r.status.SetLastCycle(result.State, result.Timestamp)
	}

	switch result.State {

	case epochs.STATE_DISTRIBUTED:
		distribution := taxResult.Distribution
		metrics.RecordDistribution(taxResult.Harvested, taxResult.Proceeds,
			distribution.TotalPaid, taxResult.TreasuryShare,
			len(distribution.Paid), len(distribution.Skipped))

		log.WithFields(log.Fields{
			"Harvested": taxResult.Harvested,
			"Proceeds":  util.FormatSol(taxResult.Proceeds),
			"Holders":   len(distribution.Paid),
			"Skipped":   len(distribution.Skipped),
		}).Info("Cycle distributed")

		if r.notifiers != nil {
			r.notifiers.Notify(fmt.Sprintf(
				"NukeBot cycle %d (%s): harvested %d NUKE units, distributed %s SOL to %d holders, %s SOL to treasury",
				result.CycleNumber, result.Epoch,
				taxResult.Harvested, util.FormatSol(distribution.TotalPaid),
				len(distribution.Paid), util.FormatSol(taxResult.TreasuryShare)))
		}

	case epochs.STATE_ROLLED_OVER:
		log.WithFields(log.Fields{
			"Epoch": result.Epoch, "Cycle": result.CycleNumber,
		}).Info("Cycle rolled over")

	case epochs.STATE_FAILED:
		if r.status != nil {
			r.status.SetError(pipelineErr)
		}

		log.WithError(pipelineErr).WithFields(log.Fields{
			"Epoch": result.Epoch, "Cycle": result.CycleNumber,
		}).Error("Cycle failed")

		if r.notifiers != nil {
			r.notifiers.Notify(fmt.Sprintf("NukeBot cycle %d (%s) FAILED: %s",
				result.CycleNumber, result.Epoch, result.Error))
		}
	}
}
