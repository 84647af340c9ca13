package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knowledge-engine/corpus/internal/search"
)

var (
	contextSize int
	contextFlat bool
	statsTop    int
	compareTop  int
)

var contextCmd = &cobra.Command{
	Use:   "context [theme] [keyword]",
	Short: "Show a keyword in context",
	Args:  cobra.ExactArgs(2),
	RunE:  runContext,
}

var statsCmd = &cobra.Command{
	Use:   "stats [theme]",
	Short: "Show corpus size and most frequent words",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

var authorsCmd = &cobra.Command{
	Use:   "authors [theme]",
	Short: "List corpus authors",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthors,
}

var compareCmd = &cobra.Command{
	Use:   "compare [theme] [theme]",
	Short: "Compare the mean TF and TF-IDF terms of two corpora",
	Args:  cobra.ExactArgs(2),
	RunE:  runCompare,
}

func init() {
	contextCmd.Flags().IntVarP(&contextSize, "size", "s", search.DefaultContextSize, "words shown on each side")
	contextCmd.Flags().BoolVar(&contextFlat, "flat", false, "print one plain line per occurrence with the default window")
	statsCmd.Flags().IntVarP(&statsTop, "top", "t", 20, "number of words")
	compareCmd.Flags().IntVarP(&compareTop, "top", "t", 20, "number of terms per corpus")

	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(authorsCmd)
	rootCmd.AddCommand(compareCmd)
}

func runContext(cmd *cobra.Command, args []string) error {
	theme, keyword := args[0], args[1]
	eng, err := openCorpus(cmd, theme)
	if err != nil {
		return err
	}

	if contextFlat {
		lines, err := eng.Concordance(context.Background(), theme, keyword)
		if err != nil {
			return fmt.Errorf("context failed: %w", err)
		}
		for _, line := range lines {
			cmd.Println(line)
		}
		return nil
	}

	rows, err := eng.Context(context.Background(), theme, keyword, contextSize)
	if err != nil {
		return fmt.Errorf("context failed: %w", err)
	}
	if len(rows) == 0 {
		cmd.Printf("No occurrence of %q.\n", keyword)
		return nil
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row.Left))
	}
	for _, row := range rows {
		cmd.Printf("%*s  %s  %s\n", width, row.Left, strings.ToUpper(row.Match), row.Right)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	theme := args[0]
	eng, err := openCorpus(cmd, theme)
	if err != nil {
		return err
	}

	stats, err := eng.Stats(context.Background(), theme, statsTop)
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}

	cmd.Printf("Corpus %s\n", stats.Name)
	cmd.Printf("  documents:  %d\n", stats.Documents)
	cmd.Printf("  authors:    %d\n", stats.Authors)
	cmd.Printf("  vocabulary: %d\n", stats.Vocabulary)
	cmd.Println()
	for i, term := range stats.TopTerms {
		cmd.Printf("  %3d. %-20s %d\n", i+1, term.Word, term.Frequency)
	}
	return nil
}

func runAuthors(cmd *cobra.Command, args []string) error {
	theme := args[0]
	eng, err := openCorpus(cmd, theme)
	if err != nil {
		return err
	}

	authors, err := eng.Authors(context.Background(), theme)
	if err != nil {
		return fmt.Errorf("authors failed: %w", err)
	}
	for _, a := range authors {
		cmd.Printf("%s\t%d\n", a.Name, a.Documents)
	}
	return nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	a, b := args[0], args[1]
	if a == b {
		return fmt.Errorf("compare needs two different themes")
	}
	eng, err := openCorpus(cmd, a, b)
	if err != nil {
		return err
	}

	profiles, err := eng.Compare(context.Background(), a, b, compareTop)
	if err != nil {
		return fmt.Errorf("compare failed: %w", err)
	}
	for _, p := range profiles {
		printProfile(cmd, p.Name, p.MeanTF, p.MeanTFIDF)
	}
	return nil
}

func printProfile(cmd *cobra.Command, name string, tf, tfidf []search.TermWeight) {
	cmd.Printf("Corpus %s\n", name)
	cmd.Printf("  %-24s %s\n", "mean TF", "mean TF-IDF")
	for i := 0; i < max(len(tf), len(tfidf)); i++ {
		left, right := "", ""
		if i < len(tf) {
			left = fmt.Sprintf("%s %.4f", tf[i].Word, tf[i].Weight)
		}
		if i < len(tfidf) {
			right = fmt.Sprintf("%s %.4f", tfidf[i].Word, tfidf[i].Weight)
		}
		cmd.Printf("  %-24s %s\n", left, right)
	}
	cmd.Println()
}
