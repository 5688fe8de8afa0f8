package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/finai-cli/internal/analysis"
	"github.com/KaramelBytes/finai-cli/internal/utils"
)

var (
	anaOutputPath string
	anaJSON       bool
	anaTokens     bool
	anaSampleRows int
	anaGroupBy    []string
	anaCorr       bool
	anaOutliers   bool
	anaOutlierThr float64
	anaCSV        csvFlags
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Profile a CSV/TSV without calling a model",
	Long: `Profile a CSV/TSV and print a Markdown summary. With --json, print the column
summary that the report pipeline sends to the model.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := loadTable(args[0], anaCSV)
		if err != nil {
			return err
		}
		opt := analysis.DefaultOptions()
		if cmd.Flags().Changed("sample-rows") {
			opt.SampleRows = anaSampleRows
		}
		opt.GroupBy = anaGroupBy
		opt.Correlations = anaCorr
		opt.Outliers = anaOutliers
		if anaOutlierThr > 0 {
			opt.OutlierThreshold = anaOutlierThr
		}
		rep := analysis.Profile(t, opt)

		var out string
		if anaJSON {
			out = analysis.Summarize(rep).String()
		} else {
			out = rep.Markdown()
		}

		w := cmd.OutOrStdout()
		if anaOutputPath != "" {
			if err := os.WriteFile(anaOutputPath, []byte(out), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(w, "✓ Wrote analysis to %s\n", anaOutputPath)
		} else {
			fmt.Fprintln(w, out)
		}

		if anaTokens {
			counts := utils.TokenBreakdown(map[string]string{
				"summary":  analysis.Summarize(rep).String(),
				"head":     t.Head(5),
				"describe": t.DescribeText(),
				"dtypes":   t.Dtypes(),
			})
			keys := make([]string, 0, len(counts))
			for k := range counts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			total := 0
			fmt.Fprintln(w, "\nEstimated prompt tokens per section:")
			for _, k := range keys {
				fmt.Fprintf(w, "  %-9s %d\n", k, counts[k])
				total += counts[k]
			}
			fmt.Fprintf(w, "  %-9s %d\n", "total", total)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the analysis")
	analyzeCmd.Flags().BoolVar(&anaJSON, "json", false, "print the model-facing column summary as JSON")
	analyzeCmd.Flags().BoolVar(&anaTokens, "tokens", false, "print estimated prompt tokens per section")
	analyzeCmd.Flags().IntVar(&anaSampleRows, "sample-rows", 5, "number of sample rows to include")
	analyzeCmd.Flags().StringSliceVar(&anaGroupBy, "group-by", nil, "comma-separated column names to group by (repeatable)")
	analyzeCmd.Flags().BoolVar(&anaCorr, "correlations", true, "compute Pearson correlations among numeric columns")
	analyzeCmd.Flags().BoolVar(&anaOutliers, "outliers", true, "compute robust outlier counts (MAD)")
	analyzeCmd.Flags().Float64Var(&anaOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
	addCSVFlags(analyzeCmd, &anaCSV)
}
