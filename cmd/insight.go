package cmd

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/marketlens/marketlens/pkg/config"
	"github.com/marketlens/marketlens/pkg/insight"
	"github.com/spf13/cobra"
)

var insightModel string

var insightCmd = &cobra.Command{
	Use:   "insight [prompt]",
	Short: "Stream an AI market analysis for a prompt",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Get()

		model := insightModel
		if model == "" {
			model = cfg.Insight.Model
		}

		client, err := newInsightClient(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
			os.Exit(1)
		}

		prompt := strings.Join(args, " ")
		printer := &streamPrinter{}
		done := make(chan error, 1)

		service := insight.NewService(client, cfg.Insight.Debounce, cfg.Insight.Throttle, insight.Callbacks{
			OnUpdate: printer.Print,
			OnComplete: func(a insight.Analysis) {
				printer.Print(a.Text)
				done <- nil
			},
			OnError: func(err error) {
				done <- err
			},
		})

		fmt.Println(titleStyle.Render("AI 市場分析"))
		service.AnalyzeNow(insight.NewUserRequest(model, prompt))

		if err := <-done; err != nil {
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("分析失敗: %v", err)))
			os.Exit(1)
		}
		fmt.Println()
	},
}

func newInsightClient(cfg *config.Config) (insight.StreamClient, error) {
	switch cfg.Provider {
	case "langchain":
		return insight.NewLangChainClient(cfg.Insight.URL, cfg.Insight.Model)
	default:
		return insight.NewClientWithTimeout(cfg.Insight.URL, cfg.Insight.Timeout), nil
	}
}

// streamPrinter prints only the unseen suffix of a growing text value.
type streamPrinter struct {
	mu      sync.Mutex
	printed int
}

func (p *streamPrinter) Print(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(text) <= p.printed {
		return
	}
	fmt.Print(text[p.printed:])
	p.printed = len(text)
}

func (p *streamPrinter) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = 0
}

func init() {
	insightCmd.Flags().StringVar(&insightModel, "model", "", "override the configured model")
	rootCmd.AddCommand(insightCmd)
}
