package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/onoma/internal/runtime"
)

func (c *cli) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <script.risor> [arg...]",
		Short: "Run a Risor host script against the onoma module",
		Long:  "Executes a Risor script with the onoma module and a log object in scope. Remaining arguments are exposed as the args list. Scripts may import siblings from their own directory.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			script, err := filepath.Abs(args[0])
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

			scriptArgs := make([]any, 0, len(args)-1)
			for _, a := range args[1:] {
				scriptArgs = append(scriptArgs, a)
			}
			rt := runtime.NewRuntime(env, filepath.Dir(script))
			return rt.RunScript(commandContext(cmd), filepath.Base(script), map[string]any{
				"args": scriptArgs,
			})
		},
	}
}
