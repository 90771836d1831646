package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/imagematch/internal/core/domain"
	"github.com/vietddude/imagematch/internal/infra/genai/credential"
	"github.com/vietddude/imagematch/internal/infra/genai/gemini"
	"github.com/vietddude/imagematch/internal/infra/genai/routing"
	"github.com/vietddude/imagematch/internal/matching/batch"
)

var rateQuery string

var rateCmd = &cobra.Command{
	Use:   "rate [image...]",
	Short: "Rate local images against a query without starting the server",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRate,
}

func init() {
	rateCmd.Flags().StringVarP(&rateQuery, "query", "q", "", "what to look for in the images")
	_ = rateCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(rateCmd)
}

func readImages(paths []string) ([]domain.Item, error) {
	items := make([]domain.Item, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		items = append(items, domain.Item{
			ID:   p,
			Name: filepath.Base(p),
			Payload: domain.ImagePayload{
				Data:     data,
				MIMEType: http.DetectContentType(data),
			},
		})
	}
	return items, nil
}

func runRate(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	items, err := readImages(args)
	if err != nil {
		return err
	}

	pool := credential.NewPool(credential.WithFailureThreshold(cfg.GenAI.FailureThreshold))
	if err := pool.Initialize(cfg.GenAI.APIKeys); err != nil {
		return err
	}
	orch := batch.NewOrchestrator(
		pool,
		routing.NewPolicy(pool),
		gemini.NewClient(cfg.GenAI.Endpoint, cfg.GenAI.Model, cfg.GenAI.RequestTimeout),
		batch.WithConcurrency(cfg.GenAI.Concurrency),
		batch.WithCallTimeout(cfg.GenAI.CallTimeout),
	)

	scores, err := orch.RateBatch(cmd.Context(), items, rateQuery)
	if err != nil {
		return err
	}

	rows := make([][]string, len(scores))
	for i, s := range scores {
		rows[i] = []string{
			items[i].Name,
			strconv.FormatFloat(s.Score, 'f', 0, 64),
			s.Reason,
		}
	}
	fmt.Println(renderTable(
		[]string{"Image", "Score", "Reason"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft},
	))

	h := pool.Health()
	slog.Debug("Key pool after batch", "active", h.CurrentKeyIndex, "exhausted", h.AllKeysFailed)
	return nil
}
