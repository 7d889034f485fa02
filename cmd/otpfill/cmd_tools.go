package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/otp-autofill/internal/dom/htmldoc"
	"github.com/nhle/otp-autofill/internal/extract"
	"github.com/nhle/otp-autofill/internal/source/email"
	"github.com/nhle/otp-autofill/internal/store"
	"github.com/nhle/otp-autofill/internal/target"
)

var (
	extractEML   bool
	planOut      string
	historyLimit int
)

var extractCmd = &cobra.Command{
	Use:   "extract [file|-]",
	Short: "Extract a verification code from text or an .eml file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExtract,
}

var planCmd = &cobra.Command{
	Use:   "plan <page.html> <code>",
	Short: "Show which fields of a saved page would receive a code",
	Args:  cobra.ExactArgs(2),
	RunE:  runPlan,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent checks and codes",
	RunE:  runHistory,
}

func init() {
	extractCmd.Flags().BoolVar(&extractEML, "eml", false, "Parse the input as an RFC 5322 message")
	planCmd.Flags().StringVarP(&planOut, "out", "o", "", "Fill the page and write the result here")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of entries")
}

func readInput(cmd *cobra.Command, args []string) ([]byte, string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return data, "stdin", err
	}
	data, err := os.ReadFile(args[0])
	return data, args[0], err
}

func runExtract(cmd *cobra.Command, args []string) error {
	data, name, err := readInput(cmd, args)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	out := cmd.OutOrStdout()
	ex := extract.New(extract.WithLogger(logger))

	if extractEML || strings.EqualFold(filepath.Ext(name), ".eml") {
		msg, err := email.ParseMessage(name, bytes.NewReader(data))
		if err != nil {
			return err
		}
		code, ok := ex.ExtractMessage(msg, time.Now())
		if !ok {
			fmt.Fprintln(out, "no code found")
			return nil
		}
		fmt.Fprintln(out, code.Value)
		return nil
	}

	res := ex.Explain(string(data))
	switch {
	case res.Found:
		fmt.Fprintln(out, res.Code)
		if verbose {
			fmt.Fprintf(out, "pattern: %s\n", res.Pattern)
		}
	case res.Gated:
		fmt.Fprintln(out, "no code found (no verification wording)")
	default:
		fmt.Fprintln(out, "no code found")
	}
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := htmldoc.Parse(f)
	if err != nil {
		return err
	}
	code := args[1]
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	records, err := doc.Candidates(ctx)
	if err != nil {
		return err
	}
	plan := target.Select(records, code)
	printPlan(cmd.OutOrStdout(), records, plan)

	if planOut == "" {
		return nil
	}
	if _, err := target.NewEngine(logger).SelectAndFill(ctx, doc, code); err != nil {
		return err
	}
	w, err := os.Create(planOut)
	if err != nil {
		return err
	}
	defer w.Close()
	return doc.Render(w)
}

func printPlan(w io.Writer, records []target.Record, plan target.Plan) {
	byRef := make(map[string]target.Record, len(records))
	for _, r := range records {
		byRef[r.Ref] = r
	}
	fmt.Fprintf(w, "mode: %s (%d candidates)\n", plan.Mode, len(plan.Candidates))
	if plan.Empty() {
		fmt.Fprintln(w, "no field would be filled")
		return
	}
	for _, a := range plan.Assignments {
		role := "best"
		if a.Mirror {
			role = "mirror"
		}
		if plan.Mode == target.ModeSegmented {
			role = "box"
		}
		fmt.Fprintf(w, "  %-6s %-6s %q  score=%d  %s\n",
			role, a.Ref, a.Value, a.Score, byRef[a.Ref].Describe())
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return printHistory(cmd.Context(), cmd.OutOrStdout(), st, historyLimit)
}

func printHistory(ctx context.Context, w io.Writer, st store.Store, limit int) error {
	checks, err := st.RecentChecks(ctx, limit)
	if err != nil {
		return err
	}
	codes, err := st.RecentCodes(ctx, limit)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Checks:")
	if len(checks) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, c := range checks {
		line := fmt.Sprintf("  %s  %-12s", c.FinishedAt.Local().Format(time.DateTime), c.Status)
		if c.Detail != "" {
			line += "  " + c.Detail
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}

	fmt.Fprintln(w, "Codes:")
	if len(codes) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, c := range codes {
		fmt.Fprintf(w, "  %s  %-8s  %s\n", c.FoundAt.Local().Format(time.DateTime), c.Value, c.Provider)
	}
	return nil
}
