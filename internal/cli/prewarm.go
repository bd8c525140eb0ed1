package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	prewarmModels []string
	prewarmTarget string
)

var prewarmCmd = &cobra.Command{
	Use:   "prewarm",
	Short: "Load embedding models and connect to the store",
	Long: `Load the configured prewarm models (or --model), embed a warmup query
with each one and connect the default collection client.`,
	RunE: runPrewarm,
}

func init() {
	prewarmCmd.Flags().StringSliceVarP(&prewarmModels, "model", "m", nil, "Model names to prewarm (default: configured prewarm models)")
	prewarmCmd.Flags().StringVar(&prewarmTarget, "target", "", "Store target (default: configured target)")
}

func runPrewarm(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	c, err := initRuntime(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	models := prewarmModels
	if len(models) == 0 {
		models = c.Runtime.Config.Retrieval.PrewarmModels
	}

	start := time.Now()
	if err := c.Runtime.Prewarm.Prewarm(ctx, models, prewarmTarget); err != nil {
		return fmt.Errorf("prewarm: %w", err)
	}

	out := cmd.OutOrStdout()
	color.New(color.FgGreen).Fprint(out, "Prewarmed")
	fmt.Fprintf(out, " %d model(s) in %s\n", len(c.Runtime.Models.Names()), time.Since(start).Round(time.Millisecond))
	for _, name := range c.Runtime.Models.Names() {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}
