package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load [theme]",
	Short: "Load a corpus and save its snapshot",
	Long: `Restores the theme's snapshot when it holds enough documents, otherwise
fetches the missing ones from the forum and feed sources, then saves the
result for the next run.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	theme := args[0]
	eng, err := openCorpus(cmd, theme)
	if err != nil {
		return err
	}

	infos := eng.Corpora()
	info, err := eng.Load(context.Background(), theme, infos[0].TargetSize)
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}

	cmd.Printf("Corpus %s: %d documents, %d authors", info.Name, info.Documents, info.Authors)
	if info.Documents < info.TargetSize {
		cmd.Printf(" (asked for %d)", info.TargetSize)
	}
	cmd.Println()
	if info.Persisted {
		cmd.Println("Snapshot up to date.")
	}
	return nil
}
