package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"kvstore-sol/internal/config"
	"kvstore-sol/internal/svc"

	"github.com/spf13/cobra"
	"github.com/zeromicro/go-zero/core/jsonx"
)

// svcCtx 由 PersistentPreRunE 创建，子命令直接使用
var svcCtx *svc.ServiceContext

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kvstore",
	Short: "Key-value records stored in Solana accounts",
	Long: `kvstore stores JSON records in fixed-size accounts owned by the kvstore program.

Each record lives at its own address; create returns that address, which
update, delete and get take via --key.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		c, err := config.Load(path)
		if err != nil {
			return err
		}
		sc, err := svc.NewServiceContext(cmd.Context(), c)
		if err != nil {
			return err
		}
		svcCtx = sc
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if svcCtx != nil {
			svcCtx.Close()
		}
	},
}

// Execute 任何失败都以退出码 1 结束
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if svcCtx != nil {
			svcCtx.Close()
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default $HOME/.config/solana/cli/config.yml)")
}

// printJSON 输出一行 JSON 到 stdout
func printJSON(cmd *cobra.Command, v any) error {
	data, err := jsonx.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// compactJSON 校验 --data 为合法 JSON 并重新序列化为紧凑形式
func compactJSON(data string) ([]byte, error) {
	// jsonx 只解析第一个值，尾部多余内容需要单独拒绝
	if !json.Valid([]byte(data)) {
		return nil, errors.New("--data is not valid JSON")
	}
	var v any
	if err := jsonx.UnmarshalFromString(data, &v); err != nil {
		return nil, fmt.Errorf("--data is not valid JSON: %w", err)
	}
	return jsonx.Marshal(v)
}
