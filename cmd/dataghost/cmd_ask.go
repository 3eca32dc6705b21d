package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dataghost/internal/core"
	"github.com/JonMunkholm/dataghost/internal/session"
)

var (
	askQuestions     []string
	askModel         string
	askReplaceBadUTF bool
)

var askCmd = &cobra.Command{
	Use:   "ask [file.csv]",
	Short: "Load a CSV file and ask questions about it",
	Long: `Parses the CSV file locally and starts a conversation about it.

Each question is sent with the full parsed file as context. Without
--question the command reads questions from stdin, one per line, until
EOF or "exit".

Example:
  dataghost ask sales.csv -q "Which region sold the most?"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringArrayVarP(&askQuestions, "question", "q", nil, "Ask this question and exit (repeatable)")
	askCmd.Flags().StringVar(&askModel, "model", core.DefaultPricingModel, "Model used for the cost estimate")
	askCmd.Flags().BoolVar(&askReplaceBadUTF, "replace-invalid-utf8", false, "Replace invalid UTF-8 bytes instead of rejecting the file")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	data, err := loadCSV(args[0], askReplaceBadUTF)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Loaded %s: %d rows, %d columns (%s)\n",
		args[0], data.TotalRows, len(data.Headers), strings.Join(data.Headers, ", "))

	c := session.New(session.Options{Asker: newClient(), Logger: logger})
	defer c.Dispose()

	if err := c.LoadData(data); err != nil {
		return err
	}

	contextTokens := 0
	if ctxJSON, err := data.ContextJSON(); err == nil {
		contextTokens = core.EstimateTokens(ctxJSON)
	}

	if len(askQuestions) > 0 {
		for _, q := range askQuestions {
			if err := askOnce(ctx, out, c, q, contextTokens); err != nil {
				return err
			}
		}
		return nil
	}

	return repl(ctx, cmd.InOrStdin(), out, c, contextTokens)
}

func loadCSV(path string, replaceInvalid bool) (core.CSVData, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.CSVData{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	opts := core.ParseOptions{}
	if replaceInvalid {
		opts.InvalidUTF8 = core.UTF8Replace
	}
	data, err := core.NewParser(opts).Parse(f)
	if err != nil {
		return core.CSVData{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return data, nil
}

// repl reads questions line by line until EOF, "exit" or "quit".
func repl(ctx context.Context, in io.Reader, out io.Writer, c *session.Controller, contextTokens int) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := askOnce(ctx, out, c, line, contextTokens); err != nil {
			return err
		}
	}
}

// askOnce submits one question and prints the reply once it settles.
// Rejected questions are reported and skipped.
func askOnce(ctx context.Context, out io.Writer, c *session.Controller, question string, contextTokens int) error {
	tokens := core.EstimateTokens(question) + contextTokens
	cost := core.EstimateCost(tokens, core.PricePer1K(askModel))
	fmt.Fprintf(out, "(~%d tokens, est. $%.4f)\n", tokens, cost)

	if err := c.SubmitQuestion(question); err != nil {
		fmt.Fprintf(out, "! %s\n", core.FormatUserError(err))
		return nil
	}

	if err := c.Wait(ctx); err != nil {
		return err
	}

	msgs := c.Messages()
	if len(msgs) > 0 {
		fmt.Fprintf(out, "%s\n\n", msgs[len(msgs)-1].Content)
	}

	if outcome, ok := c.LastOutcome(); ok && !outcome.Succeeded() {
		logger.Warn("question failed", "category", outcome.Category, "error", outcome.Err)
	}
	return nil
}
