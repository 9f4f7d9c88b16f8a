// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/olegiv/ocms-editorial/internal/config"
)

// commandContext loads the configuration once for whichever command runs.
type commandContext struct {
	envFile string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		// .env files are optional
		if c.envFile != "" {
			if err := godotenv.Load(c.envFile); err != nil {
				c.configErr = fmt.Errorf("loading %s: %w", c.envFile, err)
				return
			}
		} else {
			_ = godotenv.Load()
		}

		cfg, err := config.Load()
		if err != nil {
			c.configErr = fmt.Errorf("loading config: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "editorial",
		Short:         "Editorial workflow and scheduled publishing service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&ctx.envFile, "env-file", "", "Load environment variables from this file instead of ./.env")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newPublishDueCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
