package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/marketlens/marketlens/pkg/config"
	"github.com/marketlens/marketlens/pkg/psychology"
	"github.com/spf13/cobra"
)

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Run the investor psychology questionnaire",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runQuiz(cmd); err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
			os.Exit(1)
		}
	},
}

func runQuiz(cmd *cobra.Command) error {
	cfg := config.Get()
	ctx := cmd.Context()

	printer := &streamPrinter{}
	client := psychology.NewAPIClientWithTimeout(cfg.Questionnaire.URL, cfg.Questionnaire.Timeout)
	session := psychology.NewSession(client, psychology.SessionConfig{
		ThrottleInterval: cfg.Questionnaire.Throttle,
		Detection:        psychology.DetectionConfig{MinLength: cfg.Questionnaire.Detection.MinLength},
		OnQuestionText: func(text string, _ []string) {
			printer.Print(text)
		},
	})
	defer session.Reset()

	fmt.Println(titleStyle.Render("投資心理測驗"))

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("無法開始測驗: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	for {
		if err := session.WaitForQuestion(ctx); err != nil {
			return err
		}
		if msg := session.Err(); msg != "" {
			fmt.Println(errorStyle.Render(msg))
			fmt.Println(mutedStyle.Render("按 Enter 重試，或輸入 q 離開"))
			line, _ := reader.ReadString('\n')
			if strings.TrimSpace(line) == "q" {
				return nil
			}
			session.ClearError()
			if err := session.Regenerate(); err != nil {
				return err
			}
			printer.Reset()
			continue
		}
		if session.Finished() {
			break
		}

		q, ok := session.CurrentQuestion()
		if !ok {
			continue
		}

		printQuestion(session, q, printer)

		input, regenerate, quit := readAnswer(reader, q)
		if quit {
			return nil
		}
		if regenerate {
			printer.Reset()
			if err := session.Regenerate(); err != nil {
				fmt.Println(errorStyle.Render(err.Error()))
			}
			continue
		}

		err := session.SubmitAnswer(ctx, input)
		var validation *psychology.ValidationError
		if errors.As(err, &validation) {
			fmt.Println(errorStyle.Render(validation.Message))
			continue
		}
		if err != nil {
			fmt.Println(errorStyle.Render(fmt.Sprintf("提交失敗: %v", err)))
			session.ClearError()
			continue
		}
		printer.Reset()
	}

	printResult(session)
	return nil
}

func printQuestion(session *psychology.Session, q psychology.Question, printer *streamPrinter) {
	fmt.Println()
	header := fmt.Sprintf("第 %d 題", session.QuestionIndex())
	if total := session.TotalQuestions(); total > 0 {
		header = fmt.Sprintf("第 %d / %d 題", session.QuestionIndex(), total)
	}
	fmt.Println(titleStyle.Render(header))

	// Streamed text was already printed incrementally.
	printer.Print(q.Text)
	fmt.Println()

	if reason, incomplete := session.CheckCurrentQuestion(); incomplete {
		fmt.Println(mutedStyle.Render(fmt.Sprintf("題目錯誤：%s — 輸入 r 可重新生成題目，若為誤判請忽略。", reason)))
	}

	switch q.Type {
	case psychology.TypeChoice:
		for i, opt := range q.Options {
			fmt.Println(optionStyle.Render(fmt.Sprintf("  %d. %s", i+1, opt)))
		}
	case psychology.TypeLikert:
		if q.LikertRange != "" {
			fmt.Println(optionStyle.Render("  " + q.LikertRange))
		} else {
			fmt.Println(optionStyle.Render("  1（最低）～ 5（最高）"))
		}
		for i, opt := range q.LikertOptions {
			fmt.Println(optionStyle.Render(fmt.Sprintf("  %d: %s", i+1, opt)))
		}
	}
}

// readAnswer collects the user's answer for one question. It returns the input,
// whether regeneration was requested, and whether the user quit.
func readAnswer(reader *bufio.Reader, q psychology.Question) (psychology.AnswerInput, bool, bool) {
	for {
		fmt.Print(mutedStyle.Render("> "))
		line, err := reader.ReadString('\n')
		if err != nil {
			return psychology.AnswerInput{}, false, true
		}
		line = strings.TrimSpace(line)

		switch line {
		case "q":
			return psychology.AnswerInput{}, false, true
		case "r":
			return psychology.AnswerInput{}, true, false
		}

		switch q.Type {
		case psychology.TypeChoice:
			n, err := strconv.Atoi(line)
			if err != nil || n < 1 || n > len(q.Options) {
				fmt.Println(errorStyle.Render("請輸入選項編號"))
				continue
			}
			return psychology.AnswerInput{SelectedIndex: n - 1}, false, false
		case psychology.TypeLikert:
			n, err := strconv.Atoi(line)
			if err != nil || n < 1 || n > 5 {
				fmt.Println(errorStyle.Render("請輸入 1 到 5"))
				continue
			}
			return psychology.AnswerInput{LikertValue: n, SelectedIndex: -1}, false, false
		default:
			if line == "" {
				fmt.Println(errorStyle.Render("請輸入答案"))
				continue
			}
			return psychology.AnswerInput{Text: line, SelectedIndex: -1}, false, false
		}
	}
}

// resultSummary resolves what the result screen shows: the investor type,
// the profile, and whether the profile is a local estimate. When the server
// sent neither, the type is classified from the local profile.
func resultSummary(session *psychology.Session) (string, psychology.Profile, bool) {
	profile, ok := session.ServerProfile()
	local := !ok
	if local {
		profile = session.LocalProfile()
	}
	investorType := session.InvestorType()
	if investorType == "" {
		investorType = psychology.ClassifyInvestor(profile)
	}
	return investorType, profile, local
}

func printResult(session *psychology.Session) {
	fmt.Println()
	fmt.Println(titleStyle.Render("測驗完成"))

	investorType, profile, local := resultSummary(session)
	fmt.Println(adviceStyle.Render("投資人類型: " + investorType))
	if local {
		fmt.Println(mutedStyle.Render("（以下為本地估算的心理輪廓）"))
	}
	fmt.Printf("  風險偏好: %d\n", profile.Risk)
	fmt.Printf("  情緒穩定: %d\n", profile.Stability)
	fmt.Printf("  決策信心: %d\n", profile.Confidence)
	fmt.Printf("  耐心程度: %d\n", profile.Patience)
	fmt.Printf("  市場敏感: %d\n", profile.Sensitivity)

	if advice := session.Advice(); advice != "" {
		fmt.Println()
		fmt.Println(adviceStyle.Render("建議"))
		fmt.Println(advice)
	}
	if analysis := session.Analysis(); analysis != "" {
		fmt.Println()
		fmt.Println(adviceStyle.Render("分析"))
		fmt.Println(analysis)
	}
}

func init() {
	rootCmd.AddCommand(quizCmd)
}
