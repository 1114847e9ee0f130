package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abdul977/whimsical-idea-keeper/Config"
	"github.com/abdul977/whimsical-idea-keeper/database"
)

// version 构建时通过 -ldflags "-X main.version=..." 注入
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:           "whimsical",
		Short:         "Whimsical Idea Keeper 笔记服务",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", ".", ".env 所在目录")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(configDir)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return serve(c.Context(), cfg, logger)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(configDir)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := database.Open(cfg.DatabaseURL, cfg.Debug, logger)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			logger.Info("数据库迁移完成")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(c *cobra.Command, _ []string) {
			fmt.Fprintln(c.OutOrStdout(), version)
		},
	})

	return root
}

func bootstrap(configDir string) (*Config.Config, *zap.Logger, error) {
	cfg, err := Config.Load(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	logger, err := Config.NewLogger(cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, logger, nil
}
