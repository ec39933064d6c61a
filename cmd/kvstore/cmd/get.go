package cmd

import (
	"fmt"

	"kvstore-sol/internal/client"
	"kvstore-sol/internal/types"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Read a record",
	Long: `Read the raw bytes stored at --key. With --json the bytes are decoded
as JSON and printed compactly.

Example:
  kvstore get --key <address> --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		address, err := types.TryPubkeyFromBase58(key)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		if asJSON {
			var v any
			if err := client.NewJSON(svcCtx.Client).Get(cmd.Context(), address, &v); err != nil {
				return err
			}
			return printJSON(cmd, v)
		}

		data, err := svcCtx.Client.Get(cmd.Context(), address)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}

func init() {
	getCmd.Flags().StringP("key", "k", "", "record address")
	getCmd.Flags().Bool("json", false, "decode the record as JSON")
	_ = getCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(getCmd)
}
