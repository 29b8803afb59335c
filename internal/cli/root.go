package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-subtrans-agent/internal/config"
	"github.com/nerdneilsfield/go-subtrans-agent/internal/logger"
	"github.com/nerdneilsfield/go-subtrans-agent/internal/translator"
	"github.com/nerdneilsfield/go-subtrans-agent/pkg/providers"
	"github.com/nerdneilsfield/go-subtrans-agent/pkg/providers/openai"
	"github.com/nerdneilsfield/go-subtrans-agent/pkg/providers/raw"
	"github.com/nerdneilsfield/go-subtrans-agent/pkg/subtitle"
	"github.com/nerdneilsfield/go-subtrans-agent/pkg/translation"
)

var (
	// 命令行标志变量
	cfgFile       string
	sourceLang    string
	targetLang    string
	styleName     string
	chunkSize     int
	contextWindow int
	maxRetries    int
	templateName  string
	validation    string
	dryRun        bool
	debugMode     bool
	showVersion   bool
)

// NewRootCommand 创建根命令
func NewRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "subtrans [flags] input.srt output.srt",
		Short: "字幕翻译工具：保留内联标记和跨块术语一致性的LLM字幕翻译器",
		Long: `subtrans 将 SRT 字幕翻译到目标语言。

内联样式标签和控制码（<i>、{\an8} 等）在翻译前剥离、翻译后按原顺序回插；
相邻块之间携带滑动翻译历史以保持术语和语气一致；
对后端调用做限流、错误分类重试和协作式取消。`,
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Printf("subtrans %s (commit %s, built %s)\n", version, commit, buildDate)
				return nil
			}
			return runTranslate(args[0], args[1])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVarP(&sourceLang, "source", "s", "", "源语言代码")
	rootCmd.PersistentFlags().StringVarP(&targetLang, "target", "t", "", "目标语言代码")
	rootCmd.PersistentFlags().StringVar(&styleName, "style", "", "翻译风格 (literal/natural/formal/casual/anime)")
	rootCmd.PersistentFlags().IntVar(&chunkSize, "chunk-size", 0, "每块字幕行数")
	rootCmd.PersistentFlags().IntVar(&contextWindow, "context-window", -1, "块前后上下文行数")
	rootCmd.PersistentFlags().IntVar(&maxRetries, "max-retries", 0, "每块最多尝试次数")
	rootCmd.PersistentFlags().StringVar(&templateName, "template", "", "提示词模板名称")
	rootCmd.PersistentFlags().StringVar(&validation, "validation", "", "校验级别 (none/basic/strict)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "预演模式：不调用真实后端，原样回显")
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "d", false, "调试日志")
	rootCmd.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "显示版本信息")

	return rootCmd
}

// applyFlagOverrides 命令行标志覆盖配置文件
func applyFlagOverrides(cfg *config.Config) {
	if sourceLang != "" {
		cfg.SourceLang = sourceLang
	}
	if targetLang != "" {
		cfg.TargetLang = targetLang
	}
	if styleName != "" {
		cfg.Style = styleName
	}
	if chunkSize > 0 {
		cfg.ChunkSize = chunkSize
	}
	if contextWindow >= 0 {
		cfg.ContextWindow = contextWindow
	}
	if maxRetries > 0 {
		cfg.MaxRetries = maxRetries
	}
	if templateName != "" {
		cfg.TemplateName = templateName
	}
	if validation != "" {
		cfg.ValidationLevel = validation
	}
	if debugMode {
		cfg.Debug = true
	}
}

// buildProvider 根据配置创建翻译后端
func buildProvider(cfg *config.Config) (providers.Provider, error) {
	if dryRun || cfg.Provider.APIType == "raw" {
		return raw.New(), nil
	}

	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("provider.api_key is required (or set SUBTRANS_PROVIDER_API_KEY)")
	}

	providerCfg := openai.DefaultConfig()
	providerCfg.APIKey = cfg.Provider.APIKey
	providerCfg.BaseURL = cfg.Provider.BaseURL
	providerCfg.Timeout = time.Duration(cfg.RequestTimeout) * time.Second
	if cfg.Provider.Model != "" {
		providerCfg.Model = cfg.Provider.Model
	}
	if cfg.Provider.Temperature > 0 {
		providerCfg.Temperature = float32(cfg.Provider.Temperature)
	}
	if cfg.Provider.MaxTokens > 0 {
		providerCfg.MaxTokens = cfg.Provider.MaxTokens
	}
	return openai.New(providerCfg), nil
}

// runTranslate 执行完整的翻译流程
func runTranslate(inputPath, outputPath string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.NewLogger(cfg.Debug)
	defer func() { _ = log.Sync() }()

	input, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	lines, err := subtitle.ParseSRT(input)
	_ = input.Close()
	if err != nil {
		return fmt.Errorf("parse %s: %w", inputPath, err)
	}
	log.Info("subtitle file loaded", zap.String("file", inputPath), zap.Int("lines", len(lines)))

	store := translation.NewStore()
	if cfg.UserTemplatesPath != "" {
		if err := store.LoadUserTemplates(cfg.UserTemplatesPath); err != nil {
			return err
		}
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	limiter := translation.NewSlidingWindowLimiter(cfg.RequestsPerMinute, time.Minute)

	opts := []translator.Option{
		translator.WithLogger(log),
		translator.WithAttemptTimeout(time.Duration(cfg.RequestTimeout) * time.Second),
	}
	if cfg.UseCache {
		opts = append(opts, translator.WithCache(translation.NewMemoryCache()))
	}
	orchestrator := translator.New(provider, limiter, store, opts...)

	registry := translator.NewRegistry(log)
	task := registry.Create(translation.TaskConfig{
		SourceLang:      cfg.SourceLang,
		TargetLang:      cfg.TargetLang,
		Style:           cfg.Style,
		ChunkSize:       cfg.ChunkSize,
		ContextWindow:   cfg.ContextWindow,
		MaxRetries:      cfg.MaxRetries,
		Glossary:        cfg.Glossary,
		ForbiddenTerms:  cfg.ForbiddenTerms,
		ValidationLevel: translation.ParseValidationLevel(cfg.ValidationLevel),
		TemplateName:    cfg.TemplateName,
	})
	defer registry.Remove(task.ID)

	// Ctrl-C 触发协作式取消，已完成块的译文保留
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		registry.Cancel(task.ID)
	}()

	totalChunks := (len(lines) + cfg.ChunkSize - 1) / cfg.ChunkSize
	bar, _ := pterm.DefaultProgressbar.
		WithTotal(totalChunks).
		WithTitle("Translating").
		Start()

	start := time.Now()
	result, runErr := orchestrator.Run(context.Background(), task, lines,
		func(pct float64, status translator.Status, message string) {
			if status == translator.StatusProcessing || status == translator.StatusCompleted {
				bar.Increment()
			}
			bar.UpdateTitle(message)
		})
	_, _ = bar.Stop()

	if result != nil {
		// 失败/取消的任务也输出已完成的部分
		output, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		_, werr := output.WriteString(subtitle.FormatSRT(result.Lines, true))
		cerr := output.Close()
		if werr != nil {
			return fmt.Errorf("write output: %w", werr)
		}
		if cerr != nil {
			return fmt.Errorf("close output: %w", cerr)
		}

		printSummary(result, time.Since(start))
	}

	if runErr != nil {
		color.Red("translation failed: %v", runErr)
		return runErr
	}
	if result != nil && result.Status == translator.StatusCancelled {
		color.Yellow("translation cancelled, partial results written to %s", outputPath)
		return nil
	}

	log.Info("output written", zap.String("file", outputPath))
	return nil
}
