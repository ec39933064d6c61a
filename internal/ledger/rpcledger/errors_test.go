package rpcledger

import (
	"encoding/json"
	"testing"

	"kvstore-sol/internal/ledger"
	"kvstore-sol/internal/program"
	"kvstore-sol/internal/types"

	"github.com/blocto/solana-go-sdk/program/system"
	"github.com/blocto/solana-go-sdk/rpc"
	sdktypes "github.com/blocto/solana-go-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeJSON(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func kvstoreAt(indexes ...int) programInstructions {
	ours := programInstructions{}
	for _, i := range indexes {
		ours[i] = true
	}
	return ours
}

func TestRejectedFromRpcError(t *testing.T) {
	t.Run("instruction error", func(t *testing.T) {
		rpcErr := &rpc.JsonRpcError{
			Code:    -32002,
			Message: "Transaction simulation failed",
			Data: decodeJSON(t, `{"err":{"InstructionError":[1,"InvalidAccountData"]},
				"logs":["Program x invoke [1]","Program x failed: invalid account data"]}`),
		}
		rejected := rejectedFromRpcError(rpcErr, kvstoreAt(1))
		require.NotNil(t, rejected)
		assert.Equal(t, 1, rejected.InstructionIndex)
		assert.ErrorIs(t, rejected, program.ErrSizeMismatch)
		assert.ErrorIs(t, rejected, ledger.ErrLedgerRejected)
		assert.Len(t, rejected.Logs, 2)
	})

	t.Run("transaction error", func(t *testing.T) {
		rpcErr := &rpc.JsonRpcError{Code: -32002, Data: decodeJSON(t, `{"err":"BlockhashNotFound","logs":[]}`)}
		rejected := rejectedFromRpcError(rpcErr, kvstoreAt(1))
		require.NotNil(t, rejected)
		assert.Equal(t, -1, rejected.InstructionIndex)
		assert.ErrorIs(t, rejected, ledger.ErrBlockhashNotFound)
	})

	t.Run("system program error keeps ledger meaning", func(t *testing.T) {
		// 创建记录时第 0 条为系统程序 CreateAccount
		rpcErr := &rpc.JsonRpcError{
			Code: -32002,
			Data: decodeJSON(t, `{"err":{"InstructionError":[0,"InvalidAccountData"]},"logs":[]}`),
		}
		rejected := rejectedFromRpcError(rpcErr, kvstoreAt(1))
		require.NotNil(t, rejected)
		assert.Equal(t, 0, rejected.InstructionIndex)
		assert.ErrorIs(t, rejected, ledger.ErrInvalidAccountData)
		assert.NotErrorIs(t, rejected, program.ErrSizeMismatch)
	})

	t.Run("not a transaction error", func(t *testing.T) {
		assert.Nil(t, rejectedFromRpcError(&rpc.JsonRpcError{Code: -32005, Message: "rate limited"}, nil))
		assert.Nil(t, rejectedFromRpcError(&rpc.JsonRpcError{Code: -32002, Data: decodeJSON(t, `{"err":null}`)}, nil))
	})
}

func TestRejectedFromTxError(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		index  int
		expect error
	}{
		{"incorrect owner", `{"InstructionError":[0,"IncorrectProgramId"]}`, 0, program.ErrIncorrectOwner},
		{"missing signature", `{"InstructionError":[0,"MissingRequiredSignature"]}`, 0, program.ErrMissingSignature},
		{"malformed", `{"InstructionError":[0,"InvalidInstructionData"]}`, 0, program.ErrMalformedInstruction},
		{"ledger native", `{"InstructionError":[0,"ExternalAccountDataModified"]}`, 0, ledger.ErrExternalDataModified},
		{"already processed", `"AlreadyProcessed"`, -1, ledger.ErrAlreadyProcessed},
		{"fee", `"InsufficientFundsForFee"`, -1, ledger.ErrInsufficientFundsForFee},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rejected := rejectedFromTxError("sig", decodeJSON(t, tc.raw), nil, kvstoreAt(0))
			assert.Equal(t, "sig", rejected.Signature)
			assert.Equal(t, tc.index, rejected.InstructionIndex)
			assert.ErrorIs(t, rejected, tc.expect)
		})
	}

	t.Run("custom", func(t *testing.T) {
		rejected := rejectedFromTxError("sig", decodeJSON(t, `{"InstructionError":[0,{"Custom":0}]}`), nil, kvstoreAt(0))
		assert.EqualError(t, rejected.Reason, "custom program error: 0x0")
	})

	t.Run("unknown name", func(t *testing.T) {
		rejected := rejectedFromTxError("sig", decodeJSON(t, `{"InsufficientFundsForRent":{"account_index":1}}`), nil, nil)
		assert.EqualError(t, rejected.Reason, "InsufficientFundsForRent")
	})
}

func TestProgramInstructionsOf(t *testing.T) {
	payer := sdktypes.NewAccount()
	record := sdktypes.NewAccount()
	programID := types.Pubkey{0x4b, 0x56}

	msg := sdktypes.NewMessage(sdktypes.NewMessageParam{
		FeePayer:        payer.PublicKey,
		RecentBlockhash: "11111111111111111111111111111111",
		Instructions: []sdktypes.Instruction{
			system.Transfer(system.TransferParam{From: payer.PublicKey, To: record.PublicKey, Amount: 1}),
			{
				ProgramID: programID.ToCommon(),
				Accounts:  []sdktypes.AccountMeta{{PubKey: record.PublicKey, IsWritable: true}},
				Data:      []byte{2},
			},
		},
	})
	ours := programInstructionsOf(sdktypes.Transaction{Message: msg}, programID)
	assert.Equal(t, programInstructions{1: true}, ours)
}

func TestReached(t *testing.T) {
	confirmed := rpc.CommitmentConfirmed
	assert.False(t, reached(nil, rpc.CommitmentProcessed))
	assert.True(t, reached(&confirmed, rpc.CommitmentProcessed))
	assert.True(t, reached(&confirmed, rpc.CommitmentConfirmed))
	assert.False(t, reached(&confirmed, rpc.CommitmentFinalized))
}
