package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jward/onoma"
	"github.com/jward/onoma/internal/config"
)

func main() {
	if err := newRootCmd(os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// cli holds the state shared by every subcommand.
type cli struct {
	stderr io.Writer

	configPath string
	stateDir   string
	logLevel   string
	format     string
	quiet      bool

	cfg config.Config
	env *onoma.Env
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	c := &cli{stderr: stderr}

	root := &cobra.Command{
		Use:           "onoma",
		Short:         "Background symbol indexing and fuzzy symbol search",
		Long:          "Onoma watches source trees, keeps a SQLite symbol index current with tree-sitter, and answers fuzzy symbol queries.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(c.format); err != nil {
				return err
			}
			return c.loadConfig()
		},
		// No Run: prints help by default.
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: "+config.ConfigPath()+")")
	root.PersistentFlags().StringVar(&c.stateDir, "state-dir", "", "override the state directory holding indexes and logs")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override the session log level")
	root.PersistentFlags().StringVar(&c.format, "format", "text", "output format: json|text")
	root.PersistentFlags().BoolVarP(&c.quiet, "quiet", "q", false, "do not echo log records to a terminal")

	root.AddCommand(c.indexCmd())
	root.AddCommand(c.queryCmd())
	root.AddCommand(c.runCmd())
	root.AddCommand(c.pathsCmd())
	return root
}

// loadConfig resolves the configuration from file, environment and flags,
// in that order of increasing precedence.
func (c *cli) loadConfig() error {
	var (
		cfg config.Config
		err error
	)
	if c.configPath == "" {
		cfg, err = config.Load(config.ConfigPath())
	} else {
		cfg, err = config.Load(c.configPath)
	}
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if c.stateDir != "" {
		cfg.StateDir = c.stateDir
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

// openEnv builds the environment. The caller closes it with closeEnv.
func (c *cli) openEnv() (*onoma.Env, error) {
	var opts []onoma.Option
	if !c.quiet && isTerminal(c.stderr) {
		opts = append(opts, onoma.WithLogOutput(zerolog.ConsoleWriter{
			Out:        c.stderr,
			TimeFormat: time.Kitchen,
		}))
	}
	env, err := onoma.NewEnv(c.cfg, opts...)
	if err != nil {
		return nil, err
	}
	c.env = env
	return env, nil
}

func (c *cli) closeEnv() error {
	if c.env == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := c.env.Close(ctx)
	c.env = nil
	return err
}

// isTerminal reports whether w is a terminal (including Cygwin/MSYS).
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// resolveRoots returns absolute directories for args, defaulting to the
// working directory.
func resolveRoots(args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	roots := make([]string, 0, len(args))
	for _, dir := range args {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolving path %q: %w", dir, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("directory not found: %s", abs)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("not a directory: %s", abs)
		}
		roots = append(roots, abs)
	}
	return roots, nil
}

func validateFormat(format string) error {
	switch format {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("invalid format %q: must be one of json, text", format)
	}
}

// splitList splits a comma-separated flag value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
