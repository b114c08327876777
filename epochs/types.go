package epochs

import (
	"time"
)

// Terminal states of a cycle run. Cycles that never executed (process down)
// leave no record at all; consumers detect those as gaps in cycle numbers.
const (
	STATE_DISTRIBUTED = "DISTRIBUTED"
	STATE_ROLLED_OVER = "ROLLED_OVER"
	STATE_FAILED      = "FAILED"
)

// TaxResult is the payload of a cycle that actually distributed. Raw amounts
// are serialized as strings so API consumers never lose precision to
// floating-point JSON numbers.
type TaxResult struct {
	NukeHarvested    uint64 `json:"nukeHarvested,string"`
	SolToHolders     uint64 `json:"solToHolders,string"`
	SolToTreasury    uint64 `json:"solToTreasury,string"`
	DistributedCount int    `json:"distributedCount"`
	SwapSignature    string `json:"swapSignature,omitempty"`
}

// CycleResult is the immutable outcome of one pipeline run.
type CycleResult struct {
	Epoch       string     `json:"epoch"`
	CycleNumber int        `json:"cycleNumber"`
	State       string     `json:"state"`
	Timestamp   time.Time  `json:"timestamp"`
	Error       string     `json:"error,omitempty"`
	TaxResult   *TaxResult `json:"taxResult,omitempty"`
}

// EpochState holds one UTC day of cycle history.
type EpochState struct {
	Epoch     string        `json:"epoch"`
	Cycles    []CycleResult `json:"cycles"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// epochRecord is the durable document persisted as a whole on every change.
type epochRecord struct {
	Epochs             map[string]*EpochState `json:"epochs"`
	CurrentEpoch       string                 `json:"currentEpoch"`
	CurrentCycleNumber int                    `json:"currentCycleNumber"`
	LastCycleTimestamp time.Time              `json:"lastCycleTimestamp"`
}

// EpochInfo identifies the active cycle slot.
type EpochInfo struct {
	Epoch       string        `json:"epoch"`
	CycleNumber int           `json:"cycleNumber"`
	NextCycleIn time.Duration `json:"nextCycleIn"`
}

// Stats summarizes one epoch for the API layer.
type Stats struct {
	Epoch       string        `json:"epoch"`
	TotalCycles int           `json:"totalCycles"`
	Distributed int           `json:"distributed"`
	RolledOver  int           `json:"rolledOver"`
	Failed      int           `json:"failed"`
	Cycles      []CycleResult `json:"cycles"`
}
