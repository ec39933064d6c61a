package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kvstore-sol/internal/consts"
	"kvstore-sol/internal/types"

	sdktypes "github.com/blocto/solana-go-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const solanaCliConfig = `
json_rpc_url: "http://127.0.0.1:8899"
websocket_url: ""
keypair_path: /home/test/.config/solana/id.json
address_labels:
  "11111111111111111111111111111111": System Program
commitment: confirmed
`

func TestParseSolanaCliConfig(t *testing.T) {
	c, err := Parse([]byte(solanaCliConfig))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8899", c.JsonRpcURL)
	assert.Equal(t, "/home/test/.config/solana/id.json", c.KeypairPath)
	assert.Equal(t, "confirmed", c.Commitment)
	assert.Equal(t, LedgerRpc, c.Ledger)
	assert.Equal(t, consts.DefaultProgramID, c.ProgramPubkey())
	assert.False(t, c.KafkaProducerConf.Enabled())

	// 默认值
	assert.Equal(t, 60, c.TimeConf.ConfirmTimeoutSec)
	assert.Equal(t, 500, c.TimeConf.ConfirmPollIntervalMs)
	assert.Equal(t, 1, c.KafkaProducerConf.Partitions)

	assert.Equal(t, "System Program(11111111111111111111111111111111)", c.Label(consts.SystemProgram))
	assert.Equal(t, consts.DefaultProgramIDStr, c.Label(consts.DefaultProgramID))
}

func TestParseInvalid(t *testing.T) {
	cases := map[string]string{
		"missing rpc url":   "keypair_path: id.json\n",
		"unknown ledger":    "keypair_path: id.json\nledger: memory\n",
		"bad commitment":    "keypair_path: id.json\nledger: local\ncommitment: max\n",
		"missing keypair":   "ledger: local\n",
		"bad program id":    "keypair_path: id.json\nledger: local\nprogram_id: nope\n",
		"bad label address": "keypair_path: id.json\nledger: local\naddress_labels:\n  xyz: foo\n",
	}
	for name, yml := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(yml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("keypair_path: id.json\nledger: local\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, LedgerLocal, c.Ledger)

	_, err = Load(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("HOME", "/home/kv")
	p, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/home/kv/.config/solana/cli/config.yml", p)
}

func TestParseKeypair(t *testing.T) {
	account := sdktypes.NewAccount()

	parts := make([]string, 0, 64)
	for _, b := range account.PrivateKey {
		parts = append(parts, fmt.Sprintf("%d", b))
	}
	data := []byte("[" + strings.Join(parts, ",") + "]")

	parsed, err := ParseKeypair(data)
	require.NoError(t, err)
	assert.Equal(t, types.PubkeyFromCommon(account.PublicKey), types.PubkeyFromCommon(parsed.PublicKey))

	_, err = ParseKeypair([]byte("[1,2,3]"))
	assert.Error(t, err)

	_, err = ParseKeypair([]byte("not json"))
	assert.Error(t, err)
}
