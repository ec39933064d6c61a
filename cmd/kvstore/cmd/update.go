package cmd

import (
	"kvstore-sol/internal/types"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Overwrite a record",
	Long: `Overwrite the record stored at --key. The new value must serialize to
exactly the same number of bytes as the value it was created with.

Example:
  kvstore update --key <address> --data '{"name":"bobby"}'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		address, err := types.TryPubkeyFromBase58(key)
		if err != nil {
			return err
		}
		data, _ := cmd.Flags().GetString("data")
		payload, err := compactJSON(data)
		if err != nil {
			return err
		}

		receipt, err := svcCtx.Client.Update(cmd.Context(), address, payload)
		if err != nil {
			return err
		}
		return printJSON(cmd, receipt)
	},
}

func init() {
	updateCmd.Flags().StringP("key", "k", "", "record address")
	updateCmd.Flags().StringP("data", "d", "", "record value (JSON)")
	_ = updateCmd.MarkFlagRequired("key")
	_ = updateCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(updateCmd)
}
