package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/finai-cli/internal/archive"
	"github.com/KaramelBytes/finai-cli/internal/report"
	"github.com/KaramelBytes/finai-cli/internal/utils"
)

var (
	repOutput     string
	repModel      string
	repProvider   string
	repOllamaHost string
	repNoArchive  bool
	repJSON       bool
	repQuiet      bool
	repParallel   int
	repCSV        csvFlags
)

var reportCmd = &cobra.Command{
	Use:   "report <files...>",
	Short: "Generate an HTML analytics report for one or more CSV files",
	Example: `  finai report sales.csv
  finai report sales.csv -o out/sales.html --model openai/gpt-4o
  finai report "data/*.csv" -o out/ --parallel 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		gen, provider, model, err := newGenerator(cfg, runtimeOptions{ProviderFlag: repProvider, OllamaHost: repOllamaHost}, repModel)
		if err != nil {
			return err
		}
		var store *archive.Store
		if !repNoArchive && cfg != nil && cfg.ReportsDir != "" {
			store = archive.New(cfg.ReportsDir)
		}
		outputs := outputPaths(files, repOutput)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		parallel := repParallel
		if parallel <= 0 && cfg != nil {
			parallel = cfg.MaxConcurrentReports
		}
		if parallel <= 0 {
			parallel = 1
		}

		var (
			mu    sync.Mutex
			metas = make([]report.Metadata, len(files))
		)
		w := cmd.OutOrStdout()
		total := len(files)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(parallel)
		for i, path := range files {
			g.Go(func() error {
				if !repQuiet && !repJSON {
					mu.Lock()
					fmt.Fprintf(w, "[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
					mu.Unlock()
				}
				meta, err := runReport(gctx, gen, store, path, outputs[i])
				if err != nil {
					return fmt.Errorf("%s: %w", path, friendlyError(err, provider, model))
				}
				metas[i] = meta
				if !repQuiet && !repJSON {
					mu.Lock()
					printReportLine(w, meta, outputs[i])
					mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if !repJSON {
			return nil
		}
		var v any = metas
		if len(metas) == 1 {
			v = metas[0]
		}
		b, err := utils.PrettyJSON(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
		return nil
	},
}

func runReport(ctx context.Context, gen *report.Generator, store *archive.Store, path, output string) (report.Metadata, error) {
	t, err := loadTable(path, repCSV)
	if err != nil {
		return report.Metadata{}, err
	}
	rep, err := gen.Generate(ctx, t)
	if err != nil {
		return report.Metadata{}, err
	}
	meta := rep.Meta
	if store != nil {
		meta, err = store.Save(meta, rep.HTML)
		if err != nil {
			return meta, fmt.Errorf("archive report: %w", err)
		}
	}
	if err := utils.EnsureDir(filepath.Dir(output)); err != nil {
		return meta, fmt.Errorf("create output dir: %w", err)
	}
	if err := utils.SafeWriteFile(output, []byte(rep.HTML)); err != nil {
		return meta, fmt.Errorf("write report: %w", err)
	}
	logger.Info("report written",
		zap.String("dataset", meta.Dataset),
		zap.String("output", output),
		zap.String("id", meta.ID))
	return meta, nil
}

func printReportLine(w io.Writer, meta report.Metadata, output string) {
	fmt.Fprintf(w, "✓ Wrote %s (%d questions, %d skipped, %d charts)\n", output, meta.QuestionsAsked, meta.QuestionsSkipped, meta.Plots)
	if meta.ID != "" {
		fmt.Fprintf(w, "  archived as %s\n", meta.ID)
	}
	if meta.CostUSD != nil {
		fmt.Fprintf(w, "  tokens: %d prompt / %d completion, est. cost ~$%.4f\n", meta.Usage.PromptTokens, meta.Usage.CompletionTokens, *meta.CostUSD)
	}
	for _, warning := range meta.Warnings {
		fmt.Fprintf(w, "⚠ %s\n", warning)
	}
}

// expandInputs resolves globs and literal paths, deduplicated and sorted.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

// outputPaths picks an HTML path per input. A single input honours -o as a
// file; several inputs treat -o as a directory. Same-named inputs get a
// numeric suffix instead of overwriting each other.
func outputPaths(files []string, output string) []string {
	if len(files) == 1 && output != "" && !strings.HasSuffix(output, string(os.PathSeparator)) {
		if fi, err := os.Stat(output); err != nil || !fi.IsDir() {
			return []string{output}
		}
	}
	taken := map[string]struct{}{}
	out := make([]string, len(files))
	for i, f := range files {
		dir := output
		if dir == "" {
			dir = filepath.Dir(f)
		}
		base := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		p := filepath.Join(dir, base+".report.html")
		for n := 2; ; n++ {
			if _, ok := taken[p]; !ok {
				break
			}
			p = filepath.Join(dir, fmt.Sprintf("%s__%d.report.html", base, n))
		}
		taken[p] = struct{}{}
		out[i] = p
	}
	return out
}

func addCSVFlags(cmd *cobra.Command, f *csvFlags) {
	cmd.Flags().StringVar(&f.Delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (sniffed if omitted)")
	cmd.Flags().StringVar(&f.Decimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	cmd.Flags().StringVar(&f.Thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	cmd.Flags().IntVar(&f.MaxRows, "max-rows", 0, "maximum rows to load (0 = default cap)")
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVarP(&repOutput, "output", "o", "", "output HTML file (one input) or directory (several inputs)")
	reportCmd.Flags().StringVar(&repModel, "model", "", "model name (defaults to config or provider default)")
	reportCmd.Flags().StringVar(&repProvider, "provider", "", "provider: openrouter | openai | gemini | ollama")
	reportCmd.Flags().StringVar(&repOllamaHost, "ollama-host", "", "Ollama host URL")
	reportCmd.Flags().BoolVar(&repNoArchive, "no-archive", false, "do not store the report in the archive")
	reportCmd.Flags().BoolVar(&repJSON, "json", false, "print report metadata as JSON")
	reportCmd.Flags().BoolVarP(&repQuiet, "quiet", "q", false, "suppress progress output")
	reportCmd.Flags().IntVar(&repParallel, "parallel", 0, "reports generated concurrently (default max_concurrent_reports)")
	addCSVFlags(reportCmd, &repCSV)
}
