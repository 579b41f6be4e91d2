package cmd

import (
	"mediacore/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 mediacore 服务器",
	Long:  `启动 HTTP 服务器，提供 /stream 音频流、/ratings 评分接口和 /metrics 监控指标`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
