package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/joelkehle/patent-assistant/internal/llm"
	"github.com/joelkehle/patent-assistant/internal/patentqa"
)

var (
	askModel  string
	askIndex  string
	askStages bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question and exit",
	Long: `Answers a single question with the configured models and index.

Examples:
  patent-assistant ask "Summarize US10123456B2"
  patent-assistant ask --index 3d_dram "How do vertical channel transistors reduce leakage?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "Model name (default: first configured model)")
	askCmd.Flags().StringVarP(&askIndex, "index", "i", "", "Index id (default: first configured index)")
	askCmd.Flags().BoolVar(&askStages, "stages", true, "Print pipeline stages while answering")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	models, err := llm.NewRegistry(cfg.ModelSpecs(), nil)
	if err != nil {
		return err
	}
	model := askModel
	if model == "" {
		model = models.Default()
	}
	completer, err := models.Get(ctx, model)
	if err != nil {
		return err
	}
	indexID := askIndex
	if indexID == "" {
		indexID = cfg.Assistant.Indexes[0].ID
	}

	searcher, closeSearcher, err := a.openSearcher(ctx)
	if err != nil {
		return err
	}
	defer closeSearcher()

	router := patentqa.NewRouter(completer, searcher, patentqa.RouterConfig{
		IndexID:     indexID,
		KPerKeyword: cfg.Assistant.KPerKeyword,
		Logger:      a.logger,
	})

	question := strings.Join(args, " ")
	var progress patentqa.StageProgressFn
	if askStages {
		progress = func(stage, message string) {
			fmt.Fprintln(os.Stderr, color.CyanString("[%s] %s", stage, message))
		}
	}
	out := router.AnswerWithProgress(ctx, question, progress)
	printOutcome(out)
	if out.Status == patentqa.StatusFailed {
		return fmt.Errorf("%s: %s", out.Reason, out.Detail)
	}
	return nil
}

func printOutcome(out patentqa.Outcome) {
	switch out.Status {
	case patentqa.StatusAnswered:
		fmt.Println(out.Text)
	case patentqa.StatusNotFound:
		color.Yellow("%s", out.Detail)
	default:
		color.Red("Error: %s", out.Detail)
	}

	fmt.Println()
	faint := color.New(color.Faint)
	faint.Printf("mode: %s\n", out.Trace.Mode)
	if out.Trace.PatentNumber != "" {
		faint.Printf("patent number: %s\n", out.Trace.PatentNumber)
	}
	if len(out.Trace.Keywords) > 0 {
		faint.Printf("keywords: %s\n", strings.Join(out.Trace.Keywords, ", "))
	}
	faint.Printf("documents: %d\n", len(out.Trace.Sources))
	for _, s := range out.Trace.Sources {
		faint.Printf("  - %s\n", s)
	}
	if out.Trace.FailedStage != "" {
		faint.Printf("failed stage: %s\n", out.Trace.FailedStage)
	}
}
