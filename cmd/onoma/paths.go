package main

import (
	"github.com/spf13/cobra"

	"github.com/jward/onoma/internal/config"
)

// CLIPaths lists where onoma keeps its state.
type CLIPaths struct {
	Config   string `json:"config"`
	Root     string `json:"root"`
	Database string `json:"database"`
	Logs     string `json:"logs"`
}

func (c *cli) pathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the config, database and log locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := c.configPath
			if cfgPath == "" {
				cfgPath = config.ConfigPath()
			}
			return c.printPaths(cmd.OutOrStdout(), CLIPaths{
				Config:   cfgPath,
				Root:     c.cfg.Root(),
				Database: c.cfg.DatabaseDir(),
				Logs:     c.cfg.LogDir(),
			})
		},
	}
}
