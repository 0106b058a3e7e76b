// adgen processes campaign briefs into ad renditions from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/adcraft/ad-pipeline/internal/app"
	"github.com/adcraft/ad-pipeline/internal/brief"
	"github.com/adcraft/ad-pipeline/internal/config"
	"github.com/adcraft/ad-pipeline/internal/logging"
	"github.com/adcraft/ad-pipeline/internal/orchestrator"
	pipelineclient "github.com/adcraft/ad-pipeline/pkg/client"
	"github.com/adcraft/ad-pipeline/pkg/pipeline"
)

var (
	verbose   bool
	inputDir  string
	outputDir string
	workerURL string

	settings *config.Settings
	logger   zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "adgen",
	Short: "Generate ad renditions from campaign briefs",
	Long: `adgen turns campaign briefs, templates, and product images into a
matrix of ad renditions: one output per product x template pair.

Briefs are YAML files referencing template documents and product images
relative to the brief's directory. Outputs land under the output directory,
one subdirectory per brief.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if inputDir != "" {
			settings.InputDir = inputDir
		}
		if outputDir != "" {
			settings.OutputDir = outputDir
		}
		logger = logging.New(settings.Env, verbose)
		return nil
	},
}

var processCmd = &cobra.Command{
	Use:   "process [brief.yaml ...]",
	Short: "Process campaign briefs synchronously",
	Long: `Processes the given brief files, or every brief in the input
directory when none are given. Processing continues across briefs: one
campaign's failure never stops the next.`,
	RunE: runProcess,
}

var validateCmd = &cobra.Command{
	Use:   "validate [brief.yaml ...]",
	Short: "Validate campaign briefs without processing them",
	RunE:  runValidate,
}

var submitCmd = &cobra.Command{
	Use:   "submit [brief.yaml]",
	Short: "Submit a brief to a pipeline worker for durable processing",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Check the status of a worker run",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&inputDir, "input", "i", "", "brief input directory (overrides INPUT_DIRECTORY)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "rendition output directory (overrides OUTPUT_DIRECTORY)")
	rootCmd.PersistentFlags().StringVar(&workerURL, "worker-url", "http://localhost:8081", "pipeline worker base URL for submit/status")

	rootCmd.AddCommand(processCmd, validateCmd, submitCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveBriefs returns explicit paths, or every brief in the input
// directory when none were given.
func resolveBriefs(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	paths, err := brief.Discover(settings.InputDir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no briefs found in %s", settings.InputDir)
	}
	return paths, nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	paths, err := resolveBriefs(args)
	if err != nil {
		return err
	}

	stack, err := app.Build(settings, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failures := 0
	for _, path := range paths {
		b, err := brief.Load(path)
		if err != nil {
			logger.Error().Err(err).Str("brief", path).Msg("failed to load brief")
			failures++
			continue
		}

		summary, err := stack.Orchestrator.ProcessCampaign(ctx, b)
		if err != nil {
			failures++
		}
		if summary != nil {
			printSummary(cmd, summary)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d briefs failed", failures, len(paths))
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	paths, err := resolveBriefs(args)
	if err != nil {
		return err
	}

	invalid := 0
	for _, path := range paths {
		b, err := brief.Load(path)
		if err != nil {
			cmd.Printf("%s: failed to load: %v\n", filepath.Base(path), err)
			invalid++
			continue
		}

		report := b.Validate()
		if report.Valid() && len(report.Warnings) == 0 {
			cmd.Printf("%s: ok\n", filepath.Base(path))
			continue
		}
		for _, e := range report.Errors {
			cmd.Printf("%s: error: %s\n", filepath.Base(path), e)
		}
		for _, w := range report.Warnings {
			cmd.Printf("%s: warning: %s\n", filepath.Base(path), w)
		}
		if !report.Valid() {
			invalid++
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d briefs invalid", invalid, len(paths))
	}
	return nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	briefPath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	c := pipelineclient.New(workerURL)
	resp, err := c.SubmitCampaign(cmd.Context(), pipeline.ProcessRequest{
		BriefPath: briefPath,
		Job:       pipeline.JobCampaign,
	})
	if err != nil {
		return err
	}

	cmd.Printf("run_id: %s\n", resp.RunID)
	if resp.SeenCount > 1 {
		cmd.Printf("brief seen %d times before\n", resp.SeenCount-1)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	c := pipelineclient.New(workerURL)
	st, err := c.GetRunStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	cmd.Printf("run_id: %s\nstatus: %s\n", st.RunID, st.Status)
	if st.Error != "" {
		cmd.Printf("error: %s\n", st.Error)
	}
	return nil
}

// printSummary writes a human-readable campaign summary.
func printSummary(cmd *cobra.Command, s *orchestrator.CampaignSummary) {
	cmd.Printf("\ncampaign %q (%s): %s\n", s.Campaign, s.BriefFile, s.State)
	if s.AbortReason != "" {
		cmd.Printf("  aborted: %s\n", s.AbortReason)
		return
	}
	for _, p := range s.Products {
		if p.Skipped {
			cmd.Printf("  product %s: skipped (%s)\n", p.Name, p.SkipReason)
			continue
		}
		for _, r := range p.Renditions {
			if r.Outcome == orchestrator.OutcomeSuccess {
				cmd.Printf("  %s x %s: %s\n", r.ProductFileID, r.TemplateFileID, r.OutputPath)
			} else {
				cmd.Printf("  %s x %s: failed (%s)\n", r.ProductFileID, r.TemplateFileID, r.Reason)
			}
		}
	}
	cmd.Printf("  %d succeeded, %d failed, %d products skipped\n", s.Succeeded, s.Failed, s.SkippedProducts)
}
