package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"github.com/use-agent/promptopt/config"
	"github.com/use-agent/promptopt/models"
	"github.com/use-agent/promptopt/pipeline"
	"github.com/use-agent/promptopt/savings"
	"github.com/use-agent/promptopt/tokens"
)

// readPrompt joins args, or reads stdin when there are none or the only
// argument is "-".
func readPrompt(in io.Reader, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", fmt.Errorf("no prompt given")
	}
	return text, nil
}

func newOptimizeCmd() *cobra.Command {
	var (
		target      string
		noTranslate bool
		strategy    string
		model       string
		temperature float64
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "optimize [prompt...]",
		Short: "Optimize one prompt and print the result",
		Example: `  promptopt optimize "Please kindly create a beautiful sunset image"
  cat prompt.txt | promptopt optimize --target ja --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			cfg := config.Load()
			logCloser := initLogger(cfg.Log, cmd.ErrOrStderr())
			defer logCloser.Close()

			p, _ := buildPipeline(cfg)
			translate := cfg.Translation.Enabled && !noTranslate
			opts := pipeline.Options{
				Model:          model,
				Strategy:       strategy,
				Translate:      &translate,
				TargetLanguage: target,
			}
			if cmd.Flags().Changed("temperature") {
				opts.Temperature = &temperature
			}

			outcome := p.ProcessPrompt(cmd.Context(), prompt, opts)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(outcome); err != nil {
					return err
				}
			} else {
				printOutcome(cmd.OutOrStdout(), outcome)
			}
			if !outcome.Succeeded() {
				return fmt.Errorf("optimization failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "", "target language (default from PROMPTOPT_TARGET_LANGUAGE)")
	cmd.Flags().BoolVar(&noTranslate, "no-translate", false, "skip the translation stage")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", models.StrategyConcise, "concise, creative, technical or multilingual")
	cmd.Flags().StringVarP(&model, "model", "m", "", "distillation model")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.3, "sampling temperature (0-2)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func printOutcome(w io.Writer, o models.Outcome) {
	switch r := o.(type) {
	case *models.OptimizationResult:
		s := r.Statistics
		m := savings.Compute(s.TotalTokenReduction)

		fmt.Fprintf(w, "%s %s\n\n", successIcon, bold("Optimized prompt"))
		fmt.Fprintf(w, "%s\n\n", r.Output.Prompt)
		for _, st := range s.Stages {
			fmt.Fprintf(w, "  %-13s %5d tokens  %s\n", st.Stage, st.Tokens, dim(st.Description))
		}
		fmt.Fprintf(w, "\n  %s %d → %d tokens (%s)\n",
			info("reduction"), s.TotalInputTokens, s.TotalOutputTokens,
			bold(fmt.Sprintf("%.1f%%", s.TotalTokenReductionPercentage)))
		fmt.Fprintf(w, "  %s $%.4f  %.5f kWh  %.5f kg CO2\n", info("saved"), m.MoneySaved, m.EnergySaved, m.EmissionsSaved)
		fmt.Fprintf(w, "  %s %s (%d ms)\n", dim("run"), dim(r.ID), r.ProcessingTimeMs)
	case *models.OptimizationError:
		fmt.Fprintf(w, "%s %s [%s] %s\n", errorIcon, bold("Optimization failed"), r.Code, r.Error)
		fmt.Fprintf(w, "  %s %d tokens\n", info("input"), r.Input.Tokens)
	}
}

func newCountCmd() *cobra.Command {
	var method string

	cmd := &cobra.Command{
		Use:   "count [text...]",
		Short: "Count the tokens of a text",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			cfg := config.Load()
			if method != "" {
				cfg.Tokens.Method = method
			}
			logCloser := initLogger(cfg.Log, cmd.ErrOrStderr())
			defer logCloser.Close()

			counter := newCounter(cfg, newAnthropic(cfg, &http.Client{Timeout: cfg.LLM.Timeout}))
			n := counter.Count(cmd.Context(), text)
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t(estimate %d)\n", n, strings.Join(counter.Names(), ","), tokens.Estimate(text))
			return nil
		},
	}
	cmd.Flags().StringVar(&method, "method", "", "api, tiktoken or estimation (default from PROMPTOPT_TOKEN_METHOD)")
	return cmd
}
