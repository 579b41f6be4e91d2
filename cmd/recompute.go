package cmd

import (
	"context"
	"fmt"

	"mediacore/core/rating"
	"mediacore/db"
	"mediacore/logger"
	"mediacore/repository"

	"github.com/spf13/cobra"
)

var recomputeTrackID int64

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "重新计算歌曲评分统计",
	Long:  `根据评分记录重新计算歌曲的平均分和评分数量。不指定 --track 时处理所有歌曲，每首歌在独立的事务中完成。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := db.ConnectGormDB(cfg)
		if err != nil {
			return err
		}
		defer db.CloseGormDB()

		trackRepo := repository.NewGormTrackRepository(gdb)
		// 不传缓存：统计缓存按 TTL 自然过期
		coordinator := rating.NewCoordinator(
			repository.NewGormTransactor(gdb), trackRepo, repository.NewGormRatingRepository(gdb), nil, cfg.RatingWriteTimeout)

		return runRecompute(cmd.Context(), coordinator, trackRepo, recomputeTrackID)
	},
}

func runRecompute(ctx context.Context, coordinator *rating.Coordinator, tracks repository.TrackRepository, trackID int64) error {
	ids := []int64{trackID}
	if trackID <= 0 {
		var err error
		if ids, err = tracks.ListTrackIDs(ctx); err != nil {
			return err
		}
	}

	var failed int
	for _, id := range ids {
		agg, err := coordinator.RecomputeTrack(ctx, id)
		if err != nil {
			failed++
			logger.Error("重新计算评分失败", logger.Int64("trackId", id), logger.ErrorField(err))
			continue
		}
		fmt.Printf("track %d: average=%.4f count=%d\n", id, agg.AverageRating, agg.TotalRatings)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tracks failed to recompute", failed, len(ids))
	}
	return nil
}

func init() {
	recomputeCmd.Flags().Int64Var(&recomputeTrackID, "track", 0, "只处理指定ID的歌曲")
	rootCmd.AddCommand(recomputeCmd)
}
