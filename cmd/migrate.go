package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"counsel/internal/pkg/cache"
	"counsel/internal/pkg/ctxutil"
	"counsel/internal/pkg/mongodb"
	assistantRepo "counsel/internal/repository/assistant"
	assistantsvc "counsel/internal/service/assistant"
)

var (
	migrateUserID string
	migrateFirmID string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate legacy interactions of a user into conversation threads",
	Long: `Group a user's interaction records by their thread reference and
create or refresh the matching conversation threads. Running it again
on already migrated data makes no changes.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().StringVar(&migrateUserID, "user", "", "user id (required)")
	migrateCmd.Flags().StringVar(&migrateFirmID, "firm", "", "firm id (required)")
	_ = migrateCmd.MarkFlagRequired("user")
	_ = migrateCmd.MarkFlagRequired("firm")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if cfg.Mongo.URI == "" {
		return errors.New("mongo.uri is required for migration")
	}

	mongoClient, err := mongodb.New(&cfg.Mongo)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer func() {
		if err := mongoClient.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to close MongoDB connection")
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// 与服务进程共用 Redis 锁和会话缓存，避免同一用户的迁移并发执行
	var opts []assistantsvc.MigratorOption
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisCache.Close()
		opts = append(opts,
			assistantsvc.WithMigrationCache(cache.NewThreadCache(redisCache, cfg.Assistant.ThreadCacheTTL)),
			assistantsvc.WithMigrationLock(cache.NewMigrationLock(redisCache, cache.MigrationLockTTL)),
		)
	} else {
		log.Warn().Msg("Redis not configured, make sure no server is migrating the same user")
	}

	db := mongoClient.Database()
	migrator := assistantsvc.NewMigrator(assistantRepo.NewThreadRepo(db), assistantRepo.NewInteractionRepo(db), cfg.Assistant, opts...)

	owner := ctxutil.Owner{UserID: migrateUserID, FirmID: migrateFirmID}
	report, runErr := migrator.Run(ctx, owner)
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	if runErr != nil {
		return fmt.Errorf("migration finished with errors: %w", runErr)
	}
	if report != nil && report.Busy {
		return errors.New("another migration for this user is in progress, try again later")
	}

	log.Info().Str("user_id", owner.UserID).Str("firm_id", owner.FirmID).Msg("migration completed")
	return nil
}
