package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/imagematch/internal/core/domain"
)

var resultsLimit int

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Browse archived search results on a running server",
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent results",
	Args:  cobra.NoArgs,
	RunE:  runResultsList,
}

var resultsSearchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search results by query, file name or reason",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultsSearch,
}

var resultsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show archive statistics",
	Args:  cobra.NoArgs,
	RunE:  runResultsStats,
}

func init() {
	resultsCmd.PersistentFlags().StringVar(&apiAddr, "addr", "http://localhost:8080", "server address")
	resultsCmd.PersistentFlags().IntVar(&resultsLimit, "limit", 20, "maximum number of results")
	resultsCmd.AddCommand(resultsListCmd, resultsSearchCmd, resultsStatsCmd)
	rootCmd.AddCommand(resultsCmd)
}

func printResults(list []domain.SearchResult) {
	rows := make([][]string, 0, len(list))
	for _, r := range list {
		rows = append(rows, []string{
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.Query,
			r.ImageFileName,
			strconv.FormatFloat(r.MatchScore, 'f', 0, 64),
			string(r.Source),
		})
	}
	fmt.Println(renderTable(
		[]string{"Created", "Query", "Image", "Score", "Source"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}

func runResultsList(cmd *cobra.Command, args []string) error {
	var list []domain.SearchResult
	q := url.Values{"limit": {strconv.Itoa(resultsLimit)}}
	if _, err := newAPIClient(apiAddr).do(cmd.Context(), http.MethodGet, "/api/search-results", q, &list); err != nil {
		return err
	}
	printResults(list)
	return nil
}

func runResultsSearch(cmd *cobra.Command, args []string) error {
	var list []domain.SearchResult
	q := url.Values{"q": {args[0]}, "limit": {strconv.Itoa(resultsLimit)}}
	if _, err := newAPIClient(apiAddr).do(cmd.Context(), http.MethodGet, "/api/search-results/search", q, &list); err != nil {
		return err
	}
	printResults(list)
	return nil
}

func runResultsStats(cmd *cobra.Command, args []string) error {
	var stats domain.Statistics
	if _, err := newAPIClient(apiAddr).do(cmd.Context(), http.MethodGet, "/api/statistics", nil, &stats); err != nil {
		return err
	}

	fmt.Printf("Total results: %d\n", stats.TotalResults)
	rows := make([][]string, 0, len(stats.TopQueries))
	for _, qc := range stats.TopQueries {
		rows = append(rows, []string{qc.Query, strconv.Itoa(qc.Count)})
	}
	fmt.Println(renderTable([]string{"Query", "Results"}, rows, []columnAlignment{alignLeft, alignRight}))
	return nil
}
