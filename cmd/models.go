package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/finai-cli/internal/ai"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage or inspect model catalog and pricing",
	Example: `  finai models show
  finai models sync --file ./models.json
  finai models sync --file ./models.json --merge
  finai models fetch --url https://example.com/models.json
  finai models fetch --provider openrouter --merge --output models.json`,
}

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current model catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := ai.Catalog()
		keys := make([]string, 0, len(cat))
		for k := range cat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		w := cmd.OutOrStdout()
		for _, k := range keys {
			m := cat[k]
			fmt.Fprintf(w, "%-40s ctx %7d  in $%.4f/1K  out $%.4f/1K\n", k, m.ContextTokens, m.InputPerK, m.OutputPerK)
		}
		return nil
	},
}

var (
	syncPath  string
	syncMerge bool
)

var modelsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Load model catalog/pricing from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPath == "" {
			return fmt.Errorf("--file is required")
		}
		m, err := ai.LoadCatalogFromJSON(syncPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		applyCatalog(m, syncMerge)
		if syncMerge {
			fmt.Fprintln(cmd.OutOrStdout(), "Merged model catalog from file")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Replaced model catalog from file")
		}
		return nil
	},
}

// providerURL returns a catalog URL for a known provider, honouring
// FINAI_<PROVIDER>_CATALOG_URL overrides. Empty string if unknown.
func providerURL(name string) string {
	switch ai.NormalizeProvider(name) {
	case ai.ProviderOpenRouter:
		if v := os.Getenv("FINAI_OPENROUTER_CATALOG_URL"); v != "" {
			return v
		}
		return defaultCatalogURL
	case ai.ProviderOpenAI:
		return os.Getenv("FINAI_OPENAI_CATALOG_URL")
	case ai.ProviderGemini:
		return os.Getenv("FINAI_GEMINI_CATALOG_URL")
	default:
		return ""
	}
}

var (
	fetchURL      string
	fetchOutput   string
	fetchMerge    bool
	fetchProvider string
)

var modelsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch model catalog/pricing JSON from a URL and apply it",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		url := fetchURL
		if url == "" && fetchProvider != "" {
			url = providerURL(fetchProvider)
		}
		var m map[string]ai.ModelInfo
		switch {
		case url != "":
			fetched, err := fetchCatalog(url)
			if err != nil {
				return err
			}
			m = fetched
		case fetchProvider != "":
			// No URL but a known provider: apply the built-in preset without network.
			preset, ok := ai.PresetCatalog(fetchProvider)
			if !ok {
				return fmt.Errorf("no catalog URL or preset for provider %q", fetchProvider)
			}
			m = preset
		default:
			return fmt.Errorf("--url is required (or specify --provider with a known preset)")
		}
		if fetchOutput != "" {
			data, err := json.MarshalIndent(m, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal: %w", err)
			}
			if err := os.WriteFile(fetchOutput, data, 0o644); err != nil {
				return fmt.Errorf("write file: %w", err)
			}
			fmt.Fprintf(w, "Saved catalog to %s\n", fetchOutput)
		}
		applyCatalog(m, fetchMerge)
		if fetchMerge {
			fmt.Fprintf(w, "Merged %d models into in-memory catalog\n", len(m))
		} else {
			fmt.Fprintf(w, "Replaced in-memory catalog with %d models\n", len(m))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsSyncCmd)
	modelsCmd.AddCommand(modelsFetchCmd)

	modelsSyncCmd.Flags().StringVar(&syncPath, "file", "", "path to JSON catalog file")
	modelsSyncCmd.Flags().BoolVar(&syncMerge, "merge", false, "merge into existing catalog instead of replacing")

	modelsFetchCmd.Flags().StringVar(&fetchURL, "url", "", "URL to JSON catalog file")
	modelsFetchCmd.Flags().StringVar(&fetchOutput, "output", "", "optional path to save the fetched JSON")
	modelsFetchCmd.Flags().BoolVar(&fetchMerge, "merge", false, "merge into existing catalog instead of replacing")
	modelsFetchCmd.Flags().StringVar(&fetchProvider, "provider", "", "provider preset (e.g. 'openrouter') to resolve the catalog URL if --url is not set")
}
