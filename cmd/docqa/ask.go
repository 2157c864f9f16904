package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/docqa/internal/domain"
	chiTransport "github.com/kailas-cloud/docqa/internal/transport/chi"
	"github.com/kailas-cloud/docqa/internal/usecase/qa"
)

var (
	askFile        string
	askTopK        int
	askTemperature float64
	askStream      bool
	askJSON        bool
)

var askCmd = &cobra.Command{
	Use:   "ask --file doc.pdf \"question\"",
	Short: "Answer one question about a PDF",
	Long: `Answer a question using only the content of a PDF and list the pages the
answer was drawn from.

Examples:
  docqa ask --file policy.pdf "How long are records kept?"
  docqa ask --file policy.pdf --stream --top-k 6 "Who approves exceptions?"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "path to the PDF document")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "passages to retrieve (default retrieval.k)")
	askCmd.Flags().Float64Var(&askTemperature, "temperature", 0, "sampling temperature (default llm.temperature)")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print the answer as it is generated")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full result as JSON")
	_ = askCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), envName)
	if err != nil {
		return err
	}
	defer a.close()

	req := qa.Request{Path: askFile, Query: args[0], TopK: askTopK}
	if cmd.Flags().Changed("temperature") {
		t := askTemperature
		req.Options.Temperature = &t
	}

	out := cmd.OutOrStdout()
	if askStream && !askJSON {
		return streamAnswer(cmd, a, req)
	}

	res, err := a.qa.Ask(cmd.Context(), req)
	if err != nil {
		printFailure(cmd.ErrOrStderr(), err, res.Metrics)
		return errSilent
	}
	if askJSON {
		return printJSON(out, res)
	}
	printAnswer(out, res)
	return nil
}

func streamAnswer(cmd *cobra.Command, a *app, req qa.Request) error {
	out := cmd.OutOrStdout()
	st, err := a.qa.AskStream(cmd.Context(), req)
	if err != nil {
		var stages []domain.StageMetric
		if st != nil {
			stages = st.Metrics()
		}
		printFailure(cmd.ErrOrStderr(), err, stages)
		return errSilent
	}

	color.New(color.Bold).Fprintln(out, "Answer:")
	for frag, err := range st.Fragments {
		if err != nil {
			fmt.Fprintln(out)
			printFailure(cmd.ErrOrStderr(), err, st.Metrics())
			return errSilent
		}
		fmt.Fprint(out, frag)
	}
	fmt.Fprintln(out)

	printSources(out, st.Sources)
	printMetrics(out, st.Metrics(), 0, st.CacheHit)
	return nil
}

// printJSON writes res in the body shape of POST /v1/ask.
func printJSON(w io.Writer, res domain.AnswerResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(chiTransport.NewAnswerResponse(res))
}

// errSilent reports failure through the exit code after the message was printed.
var errSilent = errors.New("request failed")

func printAnswer(w io.Writer, res domain.AnswerResult) {
	color.New(color.Bold).Fprintln(w, "Answer:")
	fmt.Fprintln(w, strings.TrimSpace(res.Answer))
	printSources(w, res.Sources)
	printMetrics(w, res.Metrics, res.Total, res.CacheHit)
}

func printSources(w io.Writer, sources []domain.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	color.New(color.Bold).Fprintln(w, "Sources:")
	page := color.New(color.FgCyan)
	for _, s := range sources {
		page.Fprintf(w, "  [p.%d]", s.Page)
		fmt.Fprintf(w, " %s ", s.Excerpt)
		color.New(color.Faint).Fprintf(w, "(%.2f)\n", s.Score)
	}
}

func printMetrics(w io.Writer, stages []domain.StageMetric, total time.Duration, cacheHit bool) {
	if len(stages) == 0 {
		return
	}
	parts := make([]string, 0, len(stages)+1)
	for _, m := range stages {
		parts = append(parts, fmt.Sprintf("%s %s", m.Stage, m.Duration.Round(time.Millisecond)))
	}
	if total > 0 {
		parts = append(parts, fmt.Sprintf("total %s", total.Round(time.Millisecond)))
	}
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	fmt.Fprintln(w)
	color.New(color.Faint).Fprintf(w, "%s | cache %s\n", strings.Join(parts, " | "), cache)
}

func printFailure(w io.Writer, err error, stages []domain.StageMetric) {
	color.New(color.FgRed, color.Bold).Fprint(w, "Error: ")
	fmt.Fprintln(w, domain.UserMessage(err))
	printMetrics(w, stages, 0, false)
}
