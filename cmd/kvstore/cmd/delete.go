package cmd

import (
	"kvstore-sol/internal/types"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a record",
	Long: `Zero the record stored at --key and refund its balance to the payer.

Example:
  kvstore delete --key <address>`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		address, err := types.TryPubkeyFromBase58(key)
		if err != nil {
			return err
		}

		receipt, err := svcCtx.Client.Delete(cmd.Context(), address)
		if err != nil {
			return err
		}
		return printJSON(cmd, receipt)
	},
}

func init() {
	deleteCmd.Flags().StringP("key", "k", "", "record address")
	_ = deleteCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(deleteCmd)
}
