package cmd

import (
	"fmt"
	"time"

	"mediacore/core/auth"

	"github.com/spf13/cobra"
)

var (
	tokenUserID   int64
	tokenUsername string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "签发本地调试用的访问令牌",
	Long:  `使用 JWT_SECRET 签发访问令牌，便于在本地调用评分写接口。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenUserID <= 0 {
			return fmt.Errorf("--user is required")
		}
		token, err := auth.GenerateToken([]byte(cfg.JWTSecret), tokenUserID, tokenUsername, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Int64Var(&tokenUserID, "user", 0, "用户ID")
	tokenCmd.Flags().StringVar(&tokenUsername, "name", "", "用户名")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "有效期")
	rootCmd.AddCommand(tokenCmd)
}
