package cmd

import (
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a record",
	Long: `Allocate a new account sized to the record and write the record into it.

Example:
  kvstore create --data '{"name":"alice"}'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, _ := cmd.Flags().GetString("data")
		payload, err := compactJSON(data)
		if err != nil {
			return err
		}

		res, err := svcCtx.Client.Create(cmd.Context(), payload)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

func init() {
	createCmd.Flags().StringP("data", "d", "", "record value (JSON)")
	_ = createCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(createCmd)
}
