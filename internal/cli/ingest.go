package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/cvcontext/internal/usecase/ingest"
)

var (
	ingestSource string
	ingestFile   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Split a resume into paragraphs and index them",
	Long: `Read a plain-text resume (--file, or stdin when --file is "-"), split it into
paragraphs on blank lines and insert each one tagged with --source.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestSource, "source", "s", "", "Source tag stored with every chunk (default: file name)")
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "Plain-text resume, - for stdin")
	_ = ingestCmd.MarkFlagRequired("file")
}

func runIngest(cmd *cobra.Command, _ []string) error {
	text, err := readInput(cmd, ingestFile)
	if err != nil {
		return err
	}
	source := ingestSource
	if source == "" && ingestFile != "-" {
		source = filepath.Base(ingestFile)
	}
	if source == "" {
		return errors.New("--source is required when reading stdin")
	}

	ctx := cmd.Context()
	c, err := initRuntime(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	n, err := c.Runtime.Ingest.Ingest(ctx, source, ingest.SplitParagraphs(text))
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	out := cmd.OutOrStdout()
	color.New(color.FgGreen).Fprintf(out, "Ingested %d chunk(s)", n)
	fmt.Fprintf(out, " from %s\n", source)
	return nil
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
