package memledger

import (
	"context"
	"testing"

	"kvstore-sol/internal/consts"
	"kvstore-sol/internal/ledger"
	"kvstore-sol/internal/program"
	"kvstore-sol/internal/types"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/system"
	sdktypes "github.com/blocto/solana-go-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProgramID = types.Pubkey{0x42, 0x42}

// programFunc 便于在测试中挂载临时程序
type programFunc func(accounts []*program.AccountInfo, input []byte) error

func (f programFunc) Process(accounts []*program.AccountInfo, input []byte) error {
	return f(accounts, input)
}

func newFundedLedger(t *testing.T, lamports uint64) (*Ledger, sdktypes.Account) {
	t.Helper()
	l := New(NewMemStore())
	l.RegisterProgram(testProgramID, program.NewProcessor(testProgramID))

	payer := sdktypes.NewAccount()
	require.NoError(t, l.Airdrop(context.Background(), types.PubkeyFromCommon(payer.PublicKey), lamports))
	return l, payer
}

func buildTx(t *testing.T, l *Ledger, payer sdktypes.Account, signers []sdktypes.Account, ixs ...sdktypes.Instruction) sdktypes.Transaction {
	t.Helper()
	bh, err := l.GetLatestBlockhash(context.Background())
	require.NoError(t, err)

	tx, err := sdktypes.NewTransaction(sdktypes.NewTransactionParam{
		Message: sdktypes.NewMessage(sdktypes.NewMessageParam{
			FeePayer:        payer.PublicKey,
			RecentBlockhash: bh,
			Instructions:    ixs,
		}),
		Signers: append([]sdktypes.Account{payer}, signers...),
	})
	require.NoError(t, err)
	return tx
}

func balance(t *testing.T, l *Ledger, key common.PublicKey) uint64 {
	t.Helper()
	acc, err := l.GetAccount(context.Background(), types.PubkeyFromCommon(key))
	require.NoError(t, err)
	return acc.Lamports
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	l, payer := newFundedLedger(t, 1_000_000)
	to := sdktypes.NewAccount()

	tx := buildTx(t, l, payer, nil, system.Transfer(system.TransferParam{
		From:   payer.PublicKey,
		To:     to.PublicKey,
		Amount: 1_000,
	}))
	receipt, err := l.SendTransaction(ctx, tx)
	require.NoError(t, err)

	assert.Equal(t, consts.LamportsPerSignature, receipt.Fee)
	assert.Equal(t, uint64(1_000_000-1_000-consts.LamportsPerSignature), balance(t, l, payer.PublicKey))
	assert.Equal(t, uint64(1_000), balance(t, l, to.PublicKey))
	assert.Equal(t, l.Slot(), receipt.Slot)
	assert.NotNil(t, receipt.BlockTime)
	assert.Len(t, receipt.LogMessages, 2)
}

func TestCreateAccountAndRecord(t *testing.T) {
	ctx := context.Background()
	l, payer := newFundedLedger(t, 100_000_000)
	record := sdktypes.NewAccount()

	rent, err := l.GetMinimumBalanceForRentExemption(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64((128+5)*3480*2), rent)

	data, err := program.EncodeInstruction(program.NewCreate([]byte("hello")))
	require.NoError(t, err)

	tx := buildTx(t, l, payer, []sdktypes.Account{record},
		system.CreateAccount(system.CreateAccountParam{
			From:     payer.PublicKey,
			New:      record.PublicKey,
			Owner:    testProgramID.ToCommon(),
			Lamports: rent,
			Space:    5,
		}),
		sdktypes.Instruction{
			ProgramID: testProgramID.ToCommon(),
			Accounts: []sdktypes.AccountMeta{
				{PubKey: record.PublicKey, IsSigner: true, IsWritable: true},
			},
			Data: data,
		},
	)
	receipt, err := l.SendTransaction(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, 2*consts.LamportsPerSignature, receipt.Fee)

	acc, err := l.GetAccount(ctx, types.PubkeyFromCommon(record.PublicKey))
	require.NoError(t, err)
	assert.Equal(t, testProgramID, acc.Owner)
	assert.Equal(t, rent, acc.Lamports)
	assert.Equal(t, []byte("hello"), acc.Data)

	t.Run("address already in use", func(t *testing.T) {
		tx := buildTx(t, l, payer, []sdktypes.Account{record},
			system.CreateAccount(system.CreateAccountParam{
				From:     payer.PublicKey,
				New:      record.PublicKey,
				Owner:    testProgramID.ToCommon(),
				Lamports: rent,
				Space:    5,
			}),
		)
		_, err := l.SendTransaction(ctx, tx)
		assert.ErrorIs(t, err, ledger.ErrAccountAlreadyInUse)
	})
}

func TestAtomicRollback(t *testing.T) {
	ctx := context.Background()
	l, payer := newFundedLedger(t, 100_000_000)
	record := sdktypes.NewAccount()

	// 分配 4 字节却写入 5 字节：第二条指令失败，第一条的分配与扣款都不能生效
	data, err := program.EncodeInstruction(program.NewCreate([]byte("hello")))
	require.NoError(t, err)

	tx := buildTx(t, l, payer, []sdktypes.Account{record},
		system.CreateAccount(system.CreateAccountParam{
			From:     payer.PublicKey,
			New:      record.PublicKey,
			Owner:    testProgramID.ToCommon(),
			Lamports: 1_000_000,
			Space:    4,
		}),
		sdktypes.Instruction{
			ProgramID: testProgramID.ToCommon(),
			Accounts:  []sdktypes.AccountMeta{{PubKey: record.PublicKey, IsSigner: true, IsWritable: true}},
			Data:      data,
		},
	)
	_, err = l.SendTransaction(ctx, tx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrLedgerRejected)
	assert.ErrorIs(t, err, program.ErrSizeMismatch)

	var rejected *ledger.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, 1, rejected.InstructionIndex)
	assert.NotEmpty(t, rejected.Logs)

	_, err = l.GetAccount(ctx, types.PubkeyFromCommon(record.PublicKey))
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	assert.Equal(t, uint64(100_000_000), balance(t, l, payer.PublicKey))
}

func TestTransactionChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("stale blockhash", func(t *testing.T) {
		l, payer := newFundedLedger(t, 1_000_000)
		tx := buildTx(t, l, payer, nil, system.Transfer(system.TransferParam{
			From: payer.PublicKey, To: sdktypes.NewAccount().PublicKey, Amount: 1,
		}))
		l.AdvanceSlots(consts.MaxRecentBlockhashes + 1)

		_, err := l.SendTransaction(ctx, tx)
		assert.ErrorIs(t, err, ledger.ErrBlockhashNotFound)
	})

	t.Run("blockhash within window", func(t *testing.T) {
		l, payer := newFundedLedger(t, 1_000_000)
		tx := buildTx(t, l, payer, nil, system.Transfer(system.TransferParam{
			From: payer.PublicKey, To: sdktypes.NewAccount().PublicKey, Amount: 1,
		}))
		l.AdvanceSlots(consts.MaxRecentBlockhashes - 1)

		_, err := l.SendTransaction(ctx, tx)
		assert.NoError(t, err)
	})

	t.Run("replay", func(t *testing.T) {
		l, payer := newFundedLedger(t, 1_000_000)
		tx := buildTx(t, l, payer, nil, system.Transfer(system.TransferParam{
			From: payer.PublicKey, To: sdktypes.NewAccount().PublicKey, Amount: 1,
		}))
		_, err := l.SendTransaction(ctx, tx)
		require.NoError(t, err)

		_, err = l.SendTransaction(ctx, tx)
		assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)
	})

	t.Run("bad signature", func(t *testing.T) {
		l, payer := newFundedLedger(t, 1_000_000)
		tx := buildTx(t, l, payer, nil, system.Transfer(system.TransferParam{
			From: payer.PublicKey, To: sdktypes.NewAccount().PublicKey, Amount: 1,
		}))
		tx.Signatures[0][0] ^= 0xff

		_, err := l.SendTransaction(ctx, tx)
		assert.ErrorIs(t, err, ledger.ErrSignatureFailure)
	})

	t.Run("fee payer cannot pay", func(t *testing.T) {
		l, payer := newFundedLedger(t, consts.LamportsPerSignature-1)
		tx := buildTx(t, l, payer, nil, system.Transfer(system.TransferParam{
			From: payer.PublicKey, To: sdktypes.NewAccount().PublicKey, Amount: 1,
		}))

		_, err := l.SendTransaction(ctx, tx)
		assert.ErrorIs(t, err, ledger.ErrInsufficientFundsForFee)
		assert.Equal(t, consts.LamportsPerSignature-1, balance(t, l, payer.PublicKey))
	})

	t.Run("unknown program", func(t *testing.T) {
		l, payer := newFundedLedger(t, 1_000_000)
		tx := buildTx(t, l, payer, nil, sdktypes.Instruction{
			ProgramID: types.Pubkey{0x99}.ToCommon(),
			Data:      []byte{0},
		})

		_, err := l.SendTransaction(ctx, tx)
		assert.ErrorIs(t, err, ledger.ErrInvalidProgram)
	})
}

func TestRuntimeAccountRules(t *testing.T) {
	ctx := context.Background()
	evilID := types.Pubkey{0x66}

	cases := []struct {
		name   string
		prog   programFunc
		meta   func(payer, victim common.PublicKey) []sdktypes.AccountMeta
		expect error
	}{
		{
			name: "readonly data modified",
			prog: func(accounts []*program.AccountInfo, _ []byte) error {
				accounts[0].Data[0] = 0xff
				return nil
			},
			meta: func(_, victim common.PublicKey) []sdktypes.AccountMeta {
				return []sdktypes.AccountMeta{{PubKey: victim, IsWritable: false}}
			},
			expect: ledger.ErrReadonlyDataModified,
		},
		{
			name: "external data modified",
			prog: func(accounts []*program.AccountInfo, _ []byte) error {
				accounts[0].Data[0] = 0xff
				return nil
			},
			meta: func(_, victim common.PublicKey) []sdktypes.AccountMeta {
				return []sdktypes.AccountMeta{{PubKey: victim, IsWritable: true}}
			},
			expect: ledger.ErrExternalDataModified,
		},
		{
			name: "external lamport spend",
			prog: func(accounts []*program.AccountInfo, _ []byte) error {
				accounts[0].Lamports--
				accounts[1].Lamports++
				return nil
			},
			meta: func(payer, victim common.PublicKey) []sdktypes.AccountMeta {
				return []sdktypes.AccountMeta{
					{PubKey: victim, IsWritable: true},
					{PubKey: payer, IsSigner: true, IsWritable: true},
				}
			},
			expect: ledger.ErrExternalLamportSpend,
		},
		{
			name: "unbalanced",
			prog: func(accounts []*program.AccountInfo, _ []byte) error {
				accounts[0].Lamports++
				return nil
			},
			meta: func(_, victim common.PublicKey) []sdktypes.AccountMeta {
				return []sdktypes.AccountMeta{{PubKey: victim, IsWritable: true}}
			},
			expect: ledger.ErrUnbalancedInstruction,
		},
		{
			name: "panic",
			prog: func(accounts []*program.AccountInfo, _ []byte) error {
				panic("boom")
			},
			meta: func(_, victim common.PublicKey) []sdktypes.AccountMeta {
				return []sdktypes.AccountMeta{{PubKey: victim, IsWritable: true}}
			},
			expect: ledger.ErrLedgerRejected,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, payer := newFundedLedger(t, 100_000_000)
			l.RegisterProgram(evilID, tc.prog)

			// 受害账户由 kvstore 程序拥有
			victim := sdktypes.NewAccount()
			data, err := program.EncodeInstruction(program.NewCreate([]byte("abc")))
			require.NoError(t, err)
			_, err = l.SendTransaction(ctx, buildTx(t, l, payer, []sdktypes.Account{victim},
				system.CreateAccount(system.CreateAccountParam{
					From: payer.PublicKey, New: victim.PublicKey, Owner: testProgramID.ToCommon(),
					Lamports: 1_000_000, Space: 3,
				}),
				sdktypes.Instruction{
					ProgramID: testProgramID.ToCommon(),
					Accounts:  []sdktypes.AccountMeta{{PubKey: victim.PublicKey, IsSigner: true, IsWritable: true}},
					Data:      data,
				},
			))
			require.NoError(t, err)

			_, err = l.SendTransaction(ctx, buildTx(t, l, payer, nil, sdktypes.Instruction{
				ProgramID: evilID.ToCommon(),
				Accounts:  tc.meta(payer.PublicKey, victim.PublicKey),
			}))
			assert.ErrorIs(t, err, tc.expect)

			acc, err := l.GetAccount(ctx, types.PubkeyFromCommon(victim.PublicKey))
			require.NoError(t, err)
			assert.Equal(t, []byte("abc"), acc.Data)
			assert.Equal(t, uint64(1_000_000), acc.Lamports)
		})
	}
}

func TestGetMultipleAccounts(t *testing.T) {
	ctx := context.Background()
	l, payer := newFundedLedger(t, 1_000)
	missing := types.Pubkey{0x07}

	accs, err := l.GetMultipleAccounts(ctx, []types.Pubkey{types.PubkeyFromCommon(payer.PublicKey), missing})
	require.NoError(t, err)
	require.Len(t, accs, 2)
	assert.Equal(t, uint64(1_000), accs[0].Lamports)
	assert.Nil(t, accs[1])
}
