package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dataghost/internal/core"
)

var tokensModel string

var tokensCmd = &cobra.Command{
	Use:   "tokens [text...]",
	Short: "Estimate the token count and cost of a prompt",
	Long: `Estimates tokens at four characters per token. With no arguments the
text is read from stdin.`,
	RunE: runTokens,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the Answer Service",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

var uploadCmd = &cobra.Command{
	Use:   "upload [file.csv]",
	Short: "Store a CSV file on the Answer Service",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List files stored on the Answer Service",
	Args:  cobra.NoArgs,
	RunE:  runListFiles,
}

var filesRmCmd = &cobra.Command{
	Use:   "rm [file-id]",
	Short: "Delete a stored file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteFile,
}

func init() {
	tokensCmd.Flags().StringVar(&tokensModel, "model", core.DefaultPricingModel, "Model used for the cost estimate")
	filesCmd.AddCommand(filesRmCmd)
}

func runTokens(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(b)
	}

	tokens := core.EstimateTokens(text)
	price := core.PricePer1K(tokensModel)
	fmt.Fprintf(cmd.OutOrStdout(), "tokens: %d\nmodel: %s\nestimated cost: $%.6f\n",
		tokens, tokensModel, core.EstimateCost(tokens, price))
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	status, err := newClient().Health(cmd.Context())
	if err != nil {
		return fmt.Errorf("answer service at %s is unreachable: %w", apiURL, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "status: %s\nservice: %s\nversion: %s\n", status.Status, status.Service, status.Version)
	if status.Environment != "" {
		fmt.Fprintf(out, "environment: %s\n", status.Environment)
	}
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	resp, err := newClient().Upload(cmd.Context(), filepath.Base(args[0]), f)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\nfile id: %s\nsize: %d bytes\n", resp.Message, resp.FileID, resp.FileSize)
	if resp.DataSummary != nil {
		fmt.Fprintln(out, resp.DataSummary.Summary)
	}
	return nil
}

func runListFiles(cmd *cobra.Command, args []string) error {
	list, err := newClient().ListFiles(cmd.Context())
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, f := range list.Files {
		fmt.Fprintf(out, "%s  %-30s %10d  %s\n",
			f.FileID, f.FileName, f.FileSize, f.UploadedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(out, "%d file(s)\n", list.TotalCount)
	return nil
}

func runDeleteFile(cmd *cobra.Command, args []string) error {
	if err := newClient().DeleteFile(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "File %s deleted\n", args[0])
	return nil
}
