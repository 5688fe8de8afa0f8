package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/finai-cli/internal/archive"
	"github.com/KaramelBytes/finai-cli/internal/utils"
)

var (
	listJSON  bool
	showMeta  bool
	showOut   string
	listLimit int
)

func archiveStore() (*archive.Store, error) {
	if cfg == nil || cfg.ReportsDir == "" {
		return nil, fmt.Errorf("no reports_dir configured")
	}
	return archive.New(cfg.ReportsDir), nil
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived reports, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := archiveStore()
		if err != nil {
			return err
		}
		metas, err := store.List()
		if err != nil {
			return err
		}
		if listLimit > 0 && len(metas) > listLimit {
			metas = metas[:listLimit]
		}
		w := cmd.OutOrStdout()
		if listJSON {
			b, err := utils.PrettyJSON(metas)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(b))
			return nil
		}
		if len(metas) == 0 {
			fmt.Fprintln(w, "(no reports)")
			return nil
		}
		for _, m := range metas {
			fmt.Fprintf(w, "- %s  %s  %s (%d rows, %d charts, model %s)\n",
				m.ID, m.CreatedAt.Local().Format("2006-01-02 15:04"), m.Dataset, m.Rows, m.Plots, m.Model)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an archived report's HTML or metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := archiveStore()
		if err != nil {
			return err
		}
		meta, html, err := store.Load(args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if showMeta {
			b, err := utils.PrettyJSON(meta)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(b))
			return nil
		}
		if showOut != "" {
			if err := os.WriteFile(showOut, []byte(html), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(w, "✓ Wrote %s\n", showOut)
			return nil
		}
		fmt.Fprintln(w, html)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print metadata as JSON")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "show at most n reports (0 = all)")
	showCmd.Flags().BoolVar(&showMeta, "meta", false, "print metadata instead of HTML")
	showCmd.Flags().StringVarP(&showOut, "output", "o", "", "write the HTML to a file")
}
