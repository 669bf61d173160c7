package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jward/onoma"
)

// CLIResult is the JSON envelope for query output.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount int    `json:"total_count"`
}

// CLISymbol is a JSON-friendly resolved symbol.
type CLISymbol struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	File      string `json:"file"`
	Score     int    `json:"score"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

func toCLISymbols(syms []*onoma.ResolvedSymbol) []CLISymbol {
	out := make([]CLISymbol, 0, len(syms))
	for _, s := range syms {
		out = append(out, CLISymbol{
			ID:        s.ID,
			Name:      s.Name,
			Kind:      s.Kind,
			File:      s.Path,
			Score:     s.Score,
			StartLine: s.StartLine,
			StartCol:  s.StartColumn,
			EndLine:   s.EndLine,
			EndCol:    s.EndColumn,
		})
	}
	return out
}

func (c *cli) printSymbols(w io.Writer, syms []*onoma.ResolvedSymbol) error {
	rows := toCLISymbols(syms)
	if c.format == "json" {
		return writeJSON(w, CLIResult{Command: "query", Results: rows, TotalCount: len(rows)})
	}
	formatSymbolsText(w, rows)
	return nil
}

func (c *cli) printPaths(w io.Writer, p CLIPaths) error {
	if c.format == "json" {
		return writeJSON(w, p)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "config\t%s\n", p.Config)
	fmt.Fprintf(tw, "root\t%s\n", p.Root)
	fmt.Fprintf(tw, "database\t%s\n", p.Database)
	fmt.Fprintf(tw, "logs\t%s\n", p.Logs)
	return tw.Flush()
}

// formatSymbolsText formats CLISymbol results as aligned columns.
func formatSymbolsText(w io.Writer, syms []CLISymbol) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tNAME\tKIND\tFILE\tLINE\tCOL")
	for _, s := range syms {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\n",
			s.Score, s.Name, s.Kind, s.File, s.StartLine, s.StartCol)
	}
	tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
