package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/nlink/pkg/cache"
	"github.com/matzehuels/nlink/pkg/config"
	"github.com/matzehuels/nlink/pkg/errors"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the index and basin cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached index, terminal list and basin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.noCache || c.cfg.Cache.Backend == config.BackendNone {
				printInfo("Caching is disabled")
				return nil
			}
			ctx := cmd.Context()
			ch, err := c.newCache(ctx)
			if err != nil {
				return err
			}
			defer ch.Close()

			cl, ok := ch.(cache.Clearer)
			if !ok {
				return errors.New(errors.ErrCodeInvalidConfig, "cache backend %q cannot be cleared", c.cfg.Cache.Backend)
			}
			spinner := newSpinnerWithContext(ctx, "Clearing cache...")
			spinner.Start()
			if err := cl.Clear(ctx); err != nil {
				spinner.StopWithError("Could not clear cache")
				return err
			}
			spinner.StopWithSuccess(fmt.Sprintf("Cleared %s cache", c.cfg.Cache.Backend))
			printDetail("Location: %s", c.cacheLocation())
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print where the configured cache lives",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(c.cacheLocation())
			return nil
		},
	}
}

// cacheLocation is the directory or server address of the configured cache.
func (c *CLI) cacheLocation() string {
	if c.cfg.Cache.Backend == config.BackendRedis {
		return "redis://" + c.cfg.Cache.RedisAddr
	}
	return c.cfg.Cache.Dir
}
