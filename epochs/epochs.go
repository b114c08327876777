// Package epochs is the bot's cycle ledger. One epoch is one UTC calendar
// day, divided into 288 five-minute cycles. The ledger stamps every pipeline
// run with its epoch/cycle identity, persists each run's outcome, and rolls
// the active epoch over at day boundaries.
package epochs

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"nukebot/util"
)

// Store is the slice of durable storage the ledger needs.
type Store interface {
	GetEpochRecord() ([]byte, error)
	SaveEpochRecord([]byte) error
}

type Ledger struct {
	store         Store
	clock         clockwork.Clock
	retentionDays int

	mu     sync.Mutex
	record *epochRecord
}

func NewLedger(store Store, retentionDays int) (*Ledger, error) {
	return NewLedgerWithClock(store, retentionDays, clockwork.NewRealClock())
}

func NewLedgerWithClock(store Store, retentionDays int, clock clockwork.Clock) (*Ledger, error) {

	l := &Ledger{
		store:         store,
		clock:         clock,
		retentionDays: retentionDays,
	}

	raw, err := l.store.GetEpochRecord()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to load epoch record")
	}

	if raw == nil {
		l.record = &epochRecord{Epochs: make(map[string]*EpochState)}
		return l, nil
	}

	var record epochRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, errors.Wrap(err, "Unable to parse epoch record")
	}
	if record.Epochs == nil {
		record.Epochs = make(map[string]*EpochState)
	}
	l.record = &record

	log.WithFields(log.Fields{
		"CurrentEpoch": record.CurrentEpoch, "Epochs": len(record.Epochs),
	}).Info("Loaded epoch ledger")

	return l, nil
}

// deriveCycle computes the epoch id and cycle number from wall-clock time.
// Cycle numbers run 1..288; the final slot of the day absorbs any clock
// slop past the last boundary.
func deriveCycle(now time.Time) (string, int) {

	now = now.UTC()
	minutes := now.Hour()*60 + now.Minute()

	cycle := minutes/util.CYCLE_MINUTES + 1
	if cycle > util.CYCLES_PER_DAY {
		cycle = util.CYCLES_PER_DAY
	}

	return now.Format("2006-01-02"), cycle
}

// CurrentEpochInfo returns the active epoch/cycle identity, rolling the
// ledger over first if the UTC day has changed since the last access.
func (l *Ledger) CurrentEpochInfo() (EpochInfo, error) {

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now().UTC()
	epoch, cycle := deriveCycle(now)

	dirty := l.rollover(epoch, now)

	// The active cycle number only ever moves forward within an epoch
	if cycle > l.record.CurrentCycleNumber {
		l.record.CurrentCycleNumber = cycle
		dirty = true
	}

	if dirty {
		if err := l.persist(); err != nil {
			return EpochInfo{}, err
		}
	}

	next := now.Truncate(util.CycleDuration).Add(util.CycleDuration)

	return EpochInfo{
		Epoch:       epoch,
		CycleNumber: l.record.CurrentCycleNumber,
		NextCycleIn: next.Sub(now),
	}, nil
}

// rollover switches the ledger to a new epoch when the derived date differs
// from the stored one. Returns true if anything changed. Caller holds the
// lock.
func (l *Ledger) rollover(epoch string, now time.Time) bool {

	if l.record.CurrentEpoch == epoch {
		// Lazily create the record on first touch of a loaded ledger
		if _, ok := l.record.Epochs[epoch]; !ok {
			l.record.Epochs[epoch] = &EpochState{Epoch: epoch, CreatedAt: now, UpdatedAt: now}
			return true
		}
		return false
	}

	// Stamp the epoch being superseded
	if prev, ok := l.record.Epochs[l.record.CurrentEpoch]; ok {
		prev.UpdatedAt = now
	}

	if _, ok := l.record.Epochs[epoch]; !ok {
		l.record.Epochs[epoch] = &EpochState{Epoch: epoch, CreatedAt: now, UpdatedAt: now}
	}

	if l.record.CurrentEpoch != "" {
		log.WithFields(log.Fields{
			"From": l.record.CurrentEpoch, "To": epoch,
		}).Info("Epoch rollover")
	}

	l.record.CurrentEpoch = epoch
	l.record.CurrentCycleNumber = 1

	l.prune(now)

	return true
}

// prune drops whole epochs older than the retention window, oldest first.
// Caller holds the lock.
func (l *Ledger) prune(now time.Time) {

	if l.retentionDays <= 0 {
		return
	}

	cutoff := now.AddDate(0, 0, -l.retentionDays).Format("2006-01-02")

	for date := range l.record.Epochs {
		if date < cutoff {
			delete(l.record.Epochs, date)
			log.WithField("Epoch", date).Info("Pruned epoch beyond retention")
		}
	}
}

// RecordResult appends a cycle outcome to its epoch. A persistence failure
// is returned to the caller as-is; the ledger is the audit trail and a
// silent loss would be worse than a failed cycle.
func (l *Ledger) RecordResult(result CycleResult) error {

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now().UTC()
	epoch, _ := deriveCycle(now)
	l.rollover(epoch, now)

	state, ok := l.record.Epochs[result.Epoch]
	if !ok {
		state = &EpochState{Epoch: result.Epoch, CreatedAt: now}
		l.record.Epochs[result.Epoch] = state
	}

	state.Cycles = append(state.Cycles, result)
	state.UpdatedAt = now

	// A day holds at most 288 results; keep the newest
	if overflow := len(state.Cycles) - util.CYCLES_PER_DAY; overflow > 0 {
		state.Cycles = append([]CycleResult(nil), state.Cycles[overflow:]...)
	}

	if result.CycleNumber > l.record.CurrentCycleNumber && result.Epoch == l.record.CurrentEpoch {
		l.record.CurrentCycleNumber = result.CycleNumber
	}
	l.record.LastCycleTimestamp = result.Timestamp

	return l.persist()
}

// persist marshals and writes the whole document. Caller holds the lock.
func (l *Ledger) persist() error {

	raw, err := json.Marshal(l.record)
	if err != nil {
		return errors.Wrap(err, "Unable to marshal epoch record")
	}

	if err := l.store.SaveEpochRecord(raw); err != nil {
		return errors.Wrap(err, "Unable to save epoch record")
	}

	return nil
}

// EpochState returns a copy of one epoch's history, or nil if unknown.
func (l *Ledger) EpochState(date string) *EpochState {

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.record.Epochs[date]
	if !ok {
		return nil
	}

	return copyEpochState(state)
}

// AllEpochStates returns copies of every retained epoch, newest first.
func (l *Ledger) AllEpochStates() []*EpochState {

	l.mu.Lock()
	defer l.mu.Unlock()

	states := make([]*EpochState, 0, len(l.record.Epochs))
	for _, state := range l.record.Epochs {
		states = append(states, copyEpochState(state))
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].Epoch > states[j].Epoch
	})

	return states
}

// EpochStatistics tallies one epoch's outcomes, or nil if unknown.
func (l *Ledger) EpochStatistics(date string) *Stats {

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.record.Epochs[date]
	if !ok {
		return nil
	}

	stats := &Stats{
		Epoch:       date,
		TotalCycles: len(state.Cycles),
		Cycles:      append([]CycleResult(nil), state.Cycles...),
	}

	for _, c := range state.Cycles {
		switch c.State {
		case STATE_DISTRIBUTED:
			stats.Distributed++
		case STATE_ROLLED_OVER:
			stats.RolledOver++
		case STATE_FAILED:
			stats.Failed++
		}
	}

	return stats
}

// LastCycleTimestamp reports when the most recent cycle was recorded.
func (l *Ledger) LastCycleTimestamp() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.record.LastCycleTimestamp
}

func copyEpochState(state *EpochState) *EpochState {
	c := *state
	c.Cycles = append([]CycleResult(nil), state.Cycles...)
	return &c
}
