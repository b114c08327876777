package main

import (
	"sync"
	"time"
)

const (

	// States for the UI to render
	STATE_WAITING = "waiting"
	STATE_RUNNING = "running"
)

// BotStatus is the live view of the bot the web API serves. Writers are the
// cycle runner and main; readers are API requests on their own goroutines.
type BotStatus struct {
	mu sync.RWMutex

	Network string `json:"network"`
	Version string `json:"version"`
	State   string `json:"state"`

	Epoch       string `json:"epoch"`
	CycleNumber int    `json:"cycleNumber"`

	LastCycleState string    `json:"lastCycleState,omitempty"`
	LastCycleTime  time.Time `json:"lastCycleTime,omitempty"`

	OperatingBalance uint64 `json:"operatingBalance,string"`

	ErrorMsg string `json:"error,omitempty"`
}

func NewBotStatus(network, version string) *BotStatus {
	return &BotStatus{
		Network: network,
		Version: version,
		State:   STATE_WAITING,
	}
}

func (b *BotStatus) SetState(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.State = s
}

func (b *BotStatus) SetCycle(epoch string, cycleNumber int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Epoch = epoch
	b.CycleNumber = cycleNumber
}

func (b *BotStatus) SetLastCycle(state string, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.LastCycleState = state
	b.LastCycleTime = at
	b.ErrorMsg = ""
}

func (b *BotStatus) SetError(e error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e != nil {
		b.ErrorMsg = e.Error()
	}
}

func (b *BotStatus) SetOperatingBalance(lamports uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.OperatingBalance = lamports
}

// Snapshot returns a copy safe to serialize outside the lock.
func (b *BotStatus) Snapshot() interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := BotStatus{
		Network:          b.Network,
		Version:          b.Version,
		State:            b.State,
		Epoch:            b.Epoch,
		CycleNumber:      b.CycleNumber,
		LastCycleState:   b.LastCycleState,
		LastCycleTime:    b.LastCycleTime,
		OperatingBalance: b.OperatingBalance,
		ErrorMsg:         b.ErrorMsg,
	}

	return out
}
