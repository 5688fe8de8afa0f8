package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	askModel      string
	askProvider   string
	askOllamaHost string
	askHTML       bool
	askCSV        csvFlags
)

var askCmd = &cobra.Command{
	Use:   "ask <file> <question>",
	Short: "Ask a single question about a CSV file",
	Example: `  finai ask sales.csv "Which region had the highest total sales?"
  finai ask sales.csv "Average units per order?" --html`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := loadTable(args[0], askCSV)
		if err != nil {
			return err
		}
		gen, provider, model, err := newGenerator(cfg, runtimeOptions{ProviderFlag: askProvider, OllamaHost: askOllamaHost}, askModel)
		if err != nil {
			return err
		}
		var answer string
		if askHTML {
			answer, err = gen.Ask(cmd.Context(), t, args[1])
		} else {
			answer, err = gen.Chat(cmd.Context(), t, args[1])
		}
		if err != nil {
			return friendlyError(err, provider, model)
		}
		fmt.Fprintln(cmd.OutOrStdout(), answer)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askModel, "model", "", "model name (defaults to config or provider default)")
	askCmd.Flags().StringVar(&askProvider, "provider", "", "provider: openrouter | openai | gemini | ollama")
	askCmd.Flags().StringVar(&askOllamaHost, "ollama-host", "", "Ollama host URL")
	askCmd.Flags().BoolVar(&askHTML, "html", false, "render the answer as HTML")
	addCSVFlags(askCmd, &askCSV)
}
