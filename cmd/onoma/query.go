package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/onoma"
)

func (c *cli) queryCmd() *cobra.Command {
	var (
		kinds []string
		file  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "query <text> [dir...]",
		Short: "Fuzzy-search indexed symbols",
		Long:  "Streams the best matching symbols under the given directories. Lines are 1-based and columns 0-based.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			roots, err := resolveRoots(args[1:])
			if err != nil {
				return err
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

			var current *string
			if file != "" {
				abs, err := filepath.Abs(file)
				if err != nil {
					return fmt.Errorf("resolving file path %q: %w", file, err)
				}
				current = &abs
			}
			qc, err := env.CreateContext(current, kinds)
			if err != nil {
				return err
			}
			r, err := env.GetResolver(roots)
			if err != nil {
				return err
			}

			ctx := commandContext(cmd)
			stream, err := r.Query(args[0], qc).Wait(ctx)
			if err != nil {
				return err
			}
			defer stream.Close()

			var syms []*onoma.ResolvedSymbol
			for limit <= 0 || len(syms) < limit {
				sym, err := stream.Next().Wait(ctx)
				if err != nil {
					return err
				}
				if sym == nil {
					break
				}
				syms = append(syms, sym)
			}
			return c.printSymbols(cmd.OutOrStdout(), syms)
		},
	}
	cmd.Flags().StringSliceVarP(&kinds, "kind", "k", nil, "restrict to symbol kinds (e.g. function,struct)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "current file; boosts symbols in it and its directory")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "stop after this many results (0 = configured max_results)")
	return cmd
}
