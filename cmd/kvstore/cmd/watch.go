package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"kvstore-sol/internal/logic/stream"
	"kvstore-sol/internal/types"
	"kvstore-sol/pkg/logger"

	"github.com/spf13/cobra"
	zerosvc "github.com/zeromicro/go-zero/core/service"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream record changes",
	Long: `Subscribe to account updates over Yellowstone gRPC (grpc.endpoint in the
config) and print each change as a JSON line. Without --key every account
owned by the kvstore program is watched. Stops on SIGINT / SIGTERM.

Example:
  kvstore watch --key <address> --key <address>`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, _ := cmd.Flags().GetStringSlice("key")
		addresses := make([]types.Pubkey, 0, len(keys))
		for _, key := range keys {
			address, err := types.TryPubkeyFromBase58(key)
			if err != nil {
				return err
			}
			addresses = append(addresses, address)
		}

		c := svcCtx.Config
		updates := make(chan *stream.RecordUpdate, 256)
		manager, err := stream.NewAccountStreamManager(c.Grpc, c.Commitment, c.ProgramPubkey(), addresses, updates)
		if err != nil {
			return err
		}

		sg := zerosvc.NewServiceGroup()
		sg.Add(manager)
		// Start 在首次连上之前不会返回，放到后台以便随时响应退出信号
		go sg.Start()
		defer sg.Stop()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sig)

		for {
			select {
			case <-sig:
				logger.Infof("watch stopped")
				return nil
			case u := <-updates:
				if err := printJSON(cmd, u); err != nil {
					return err
				}
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringSliceP("key", "k", nil, "record address to watch (repeatable)")
	rootCmd.AddCommand(watchCmd)
}
