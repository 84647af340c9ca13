package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knowledge-engine/corpus/internal/engine"
)

var (
	searchLimit  int
	searchAuthor string
	searchFrom   string
	searchTo     string
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [theme] [keywords]",
	Short: "Rank corpus documents against keywords",
	Long: `Ranks every document of the theme's corpus by cosine similarity between
its TF-IDF row and the keywords, then applies the author and date filters.`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().StringVar(&searchAuthor, "author", "", "keep documents by this author only")
	searchCmd.Flags().StringVar(&searchFrom, "from", "", "earliest publication day (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchTo, "to", "", "latest publication day (YYYY-MM-DD)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

type searchHit struct {
	Rank   int     `json:"rank"`
	Score  float64 `json:"score"`
	Type   string  `json:"type"`
	Title  string  `json:"title"`
	Author string  `json:"author"`
	Date   string  `json:"date"`
	URL    string  `json:"url"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	theme, keywords := args[0], args[1]

	from, err := parseDay(searchFrom, false)
	if err != nil {
		return err
	}
	to, err := parseDay(searchTo, true)
	if err != nil {
		return err
	}

	eng, err := openCorpus(cmd, theme)
	if err != nil {
		return err
	}

	res, err := eng.Search(context.Background(), theme, engine.Query{
		Keywords: keywords,
		Author:   searchAuthor,
		From:     from,
		To:       to,
		Limit:    searchLimit,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if !res.Matched {
		cmd.Println("None of the keywords appear in the corpus.")
		return nil
	}

	hits := make([]searchHit, len(res.Results))
	for i, r := range res.Results {
		doc := r.Document
		hits[i] = searchHit{
			Rank:   i + 1,
			Score:  r.Score,
			Type:   string(doc.Kind()),
			Title:  doc.Title(),
			Author: doc.Author(),
			Date:   doc.Date().Format("2006-01-02"),
			URL:    doc.URL(),
		}
	}

	if searchJSON {
		data, err := json.MarshalIndent(hits, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(hits) == 0 {
		cmd.Println("No document passes the filters.")
		return nil
	}
	for _, h := range hits {
		cmd.Printf("  [%d] %s (%.4f)\n", h.Rank, h.Title, h.Score)
		cmd.Printf("      %s, %s, %s\n", h.Author, h.Date, h.Type)
		if h.URL != "" {
			cmd.Printf("      %s\n", h.URL)
		}
	}
	return nil
}
