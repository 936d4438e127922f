package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vogtb/gridsync/packages/formula"
)

func runEval(cmd *cobra.Command, args []string) error {
	loc, err := formula.ParseLocale(evalLocale)
	if err != nil {
		return err
	}

	var raw [][]string
	switch {
	case evalCSV != "":
		f, err := os.Open(evalCSV)
		if err != nil {
			return err
		}
		defer f.Close()
		raw, err = readGrid(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", evalCSV, err)
		}
	case len(args) == 1:
		expr := args[0]
		if !formula.IsFormula(expr) {
			expr = "=" + expr
		}
		raw = [][]string{{expr}}
	default:
		return errors.New("give a formula or --csv")
	}

	values := formula.NewEngine(nil).Evaluate(raw, formula.Options{Locale: loc})
	return writeGrid(cmd.OutOrStdout(), values)
}

// readGrid reads CSV rows, padding ragged rows to the widest one
func readGrid(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	for i, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		rows[i] = row
	}
	return rows, nil
}

func writeGrid(w io.Writer, values [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, row := range values {
		for col, v := range row {
			if col > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, v)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
