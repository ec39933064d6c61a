package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	sdktypes "github.com/blocto/solana-go-sdk/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/jsonx"
)

func TestCompactJSON(t *testing.T) {
	out, err := compactJSON("{ \"b\": 1,\n \"a\": [1, 2.50] }")
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2.50],"b":1}`, string(out))

	for _, bad := range []string{"{not json", `{"a":1} garbage`, `{"a":1}{"b":2}`, ""} {
		_, err = compactJSON(bad)
		assert.Error(t, err, bad)
	}

	out, err = compactJSON(" \"hello\"\n")
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, string(out))
}

func writeLocalConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	account := sdktypes.NewAccount()
	ints := make([]int, len(account.PrivateKey))
	for i, b := range account.PrivateKey {
		ints[i] = int(b)
	}
	keypair, err := jsonx.Marshal(ints)
	require.NoError(t, err)
	keypairPath := filepath.Join(dir, "id.json")
	require.NoError(t, os.WriteFile(keypairPath, keypair, 0o600))

	configPath := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf("keypair_path: %s\nledger: local\n", keypairPath)), 0o600))
	return configPath
}

func TestCreateCommand(t *testing.T) {
	configPath := writeLocalConfig(t)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"create", "-c", configPath, "--data", `{"name": "alice"}`})
	require.NoError(t, rootCmd.Execute())

	var res struct {
		Address string `json:"address"`
		Receipt struct {
			Signature string `json:"signature"`
		} `json:"receipt"`
	}
	require.NoError(t, jsonx.Unmarshal(out.Bytes(), &res))
	assert.NotEmpty(t, res.Address)
	assert.NotEmpty(t, res.Receipt.Signature)
}

func TestCommandErrors(t *testing.T) {
	configPath := writeLocalConfig(t)

	cases := [][]string{
		{"create", "-c", configPath, "--data", "{oops"},
		{"create", "-c", configPath, "-d", `{"a":1} garbage`},
		{"update", "-c", configPath, "--key", "not-base58!", "--data", "{}"},
		{"get", "-c", configPath, "--key", "11111111111111111111111111111112"},
		{"delete", "-c", "/nonexistent/config.yml", "--key", "11111111111111111111111111111112"},
	}
	for _, args := range cases {
		t.Run(args[0], func(t *testing.T) {
			rootCmd.SetOut(&bytes.Buffer{})
			rootCmd.SetErr(&bytes.Buffer{})
			rootCmd.SetArgs(args)
			assert.Error(t, rootCmd.Execute())
		})
	}
}

func TestShortFlags(t *testing.T) {
	assert.Equal(t, "data", createCmd.Flags().ShorthandLookup("d").Name)
	assert.Equal(t, "data", updateCmd.Flags().ShorthandLookup("d").Name)
	for _, c := range []*cobra.Command{updateCmd, deleteCmd, getCmd, watchCmd} {
		require.NotNil(t, c.Flags().ShorthandLookup("k"), c.Name())
		assert.Equal(t, "key", c.Flags().ShorthandLookup("k").Name)
	}

	configPath := writeLocalConfig(t)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"create", "-c", configPath, "-d", `[1,2,3]`})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), `"address"`)
}
