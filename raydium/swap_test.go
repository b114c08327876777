package raydium

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"nukebot/solclient"
	"nukebot/util"
)

func TestClassifySimulation(t *testing.T) {

	t.Run("unrecognized instruction", func(t *testing.T) {
		err := classifySimulation(&solclient.SimulationError{
			TxErr: "InstructionError",
			Logs: []string{
				"Program CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C invoke [1]",
				"Program log: Error: InstructionFallbackNotFound",
			},
		})
		require.ErrorIs(t, err, ErrUnrecognizedInstruction)
	})

	t.Run("transfer fee rejection", func(t *testing.T) {
		err := classifySimulation(&solclient.SimulationError{
			TxErr: "InstructionError",
			Logs: []string{
				"Program TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb invoke [2]",
				"Program log: Error: Transfer fee calculation mismatch",
			},
		})
		require.ErrorIs(t, err, ErrTransferFeeRejected)
	})

	t.Run("other simulation failures pass through", func(t *testing.T) {
		sim := &solclient.SimulationError{
			TxErr: "InstructionError",
			Logs:  []string{"Program log: Error: exceeded desired slippage limit"},
		}
		err := classifySimulation(sim)
		require.False(t, errors.Is(err, ErrUnrecognizedInstruction))
		require.False(t, errors.Is(err, ErrTransferFeeRejected))

		var got *solclient.SimulationError
		require.True(t, errors.As(err, &got))
	})

	t.Run("non-simulation errors pass through", func(t *testing.T) {
		plain := errors.New("connection refused")
		require.Equal(t, plain, classifySimulation(plain))
	})
}

func TestTokenProgramOf(t *testing.T) {

	require.Equal(t, solana.TokenProgramID, tokenProgramOf(PoolMint{}))

	m := PoolMint{Program: util.Token2022Program}
	require.Equal(t, util.Token2022Program, tokenProgramOf(m))
}
