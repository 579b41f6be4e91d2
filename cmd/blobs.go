package cmd

import (
	"fmt"

	"mediacore/storage"

	"github.com/spf13/cobra"
)

var blobsPrefix string

var blobsCmd = &cobra.Command{
	Use:   "blobs",
	Short: "列出 MinIO 存储桶中的音频文件",
	Long:  `列出配置的 MinIO 存储桶中的音频文件及大小，用于排查没有对应歌曲的孤立文件。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		store, err := storage.NewMinioBlobStore(cfg)
		if err != nil {
			return fmt.Errorf("无法连接到MinIO: %w", err)
		}

		objects, stats, err := store.ListObjects(cmd.Context(), blobsPrefix)
		if err != nil {
			return err
		}

		fmt.Printf("\n📊 存储桶状态报告: %s\n", store.Bucket())
		fmt.Printf("🔍 前缀过滤: %s\n", blobsPrefix)
		fmt.Printf("📝 总文件数: %d\n", stats.TotalObjects)
		fmt.Printf("💾 总存储大小: %s\n", storage.FormatSize(stats.TotalSize))
		if stats.TotalObjects > 0 {
			fmt.Printf("🕒 最后更新时间: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Println("\n📋 文件列表:")
		for _, obj := range objects {
			fmt.Printf("  ├─ %s (%s, %s)\n", obj.Key, storage.FormatSize(obj.Size), obj.ContentType)
		}
		return nil
	},
}

func init() {
	blobsCmd.Flags().StringVarP(&blobsPrefix, "prefix", "p", "", "只列出指定前缀下的文件")
	rootCmd.AddCommand(blobsCmd)
}
