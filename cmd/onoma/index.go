package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func (c *cli) indexCmd() *cobra.Command {
	var (
		languages string
		watch     bool
	)
	cmd := &cobra.Command{
		Use:   "index [dir...]",
		Short: "Index directories into the symbol database",
		Long:  "Runs a full index of each directory. With --watch, keeps the index current until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			start := time.Now()
			roots, err := resolveRoots(args)
			if err != nil {
				return err
			}
			if languages != "" {
				c.cfg.Languages = splitList(languages)
			}

			env, err := c.openEnv()
			if err != nil {
				return err
			}
			defer func() {
				if cerr := c.closeEnv(); err == nil {
					err = cerr
				}
			}()

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := env.GetWatcher(roots).Wait(ctx)
			if err != nil {
				return fmt.Errorf("indexing: %w", err)
			}
			if _, err := w.Start().Wait(ctx); err != nil {
				return fmt.Errorf("indexing: %w", err)
			}
			fmt.Fprintf(c.stderr, "Indexed %d root(s) in %s\n", len(roots), time.Since(start).Round(time.Millisecond))
			fmt.Fprintf(c.stderr, "Database: %s\n", env.DatabasePath())

			if watch {
				fmt.Fprintln(c.stderr, "Watching for changes (Ctrl-C to stop)")
				<-ctx.Done()
			}
			return w.StopBlocking()
		},
	}
	cmd.Flags().StringVar(&languages, "languages", "", "comma-separated language filter (e.g. go,python)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep watching and re-indexing until interrupted")
	return cmd
}

// commandContext returns the command's context, falling back to Background
// when the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
