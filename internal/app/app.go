package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/newstalk/internal/appfeedback"
	"github.com/hitoshi/newstalk/internal/article"
	"github.com/hitoshi/newstalk/internal/auth"
	"github.com/hitoshi/newstalk/internal/config"
	"github.com/hitoshi/newstalk/internal/database"
	"github.com/hitoshi/newstalk/internal/feedback"
	"github.com/hitoshi/newstalk/internal/handler"
	"github.com/hitoshi/newstalk/internal/lesson"
	"github.com/hitoshi/newstalk/internal/llm"
	"github.com/hitoshi/newstalk/internal/logger"
	"github.com/hitoshi/newstalk/internal/metrics"
	"github.com/hitoshi/newstalk/internal/middleware"
	"github.com/hitoshi/newstalk/internal/model"
	"github.com/hitoshi/newstalk/internal/repository"
	"github.com/hitoshi/newstalk/internal/security"
	"github.com/hitoshi/newstalk/internal/session"
	"github.com/hitoshi/newstalk/internal/sidecall"
	"github.com/hitoshi/newstalk/internal/speech"
	"github.com/hitoshi/newstalk/internal/subscription"
	"github.com/hitoshi/newstalk/internal/tutor"
	"github.com/hitoshi/newstalk/internal/worker/cleanup"
	"github.com/hitoshi/newstalk/internal/worker/usagereset"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandAccount:
		return runAccount(cfg, rest, w)
	case CommandPlan:
		return runPlan(cfg, rest, w)
	default:
		return runServe(cfg)
	}
}

// openDB は接続プールを開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	return database.Connect(context.Background(), cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}, 10*time.Second)
}

// services はサーバーが使うドメインサービス一式。
type services struct {
	session     *session.Service
	tutor       *tutor.Tutor
	appFeedback *appfeedback.Service
	ledger      *subscription.Service
}

// buildServices は設定とDB接続からドメインサービスを組み立てる。
func buildServices(cfg *config.Config, db *sql.DB, collector metrics.MetricsCollector, log *slog.Logger) *services {
	// 1. リポジトリ
	store := repository.NewStore(db)
	accountRepo := repository.NewPostgresAccountRepo(db)
	appFeedbackRepo := repository.NewPostgresAppFeedbackRepo(db)

	// 2. セキュリティ
	guard := security.NewGuard()
	sanitizer := security.NewTextSanitizer()

	// 3. 外部API
	openaiClient := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	completer := llm.NewClient(openaiClient, llm.Config{
		Model:   cfg.OpenAIModel,
		Timeout: cfg.LLMTimeout,
	}, collector)
	speechClient := speech.NewClient(openaiClient, speech.Config{
		TranscribeModel:   cfg.OpenAITranscribeModel,
		TTSModel:          cfg.OpenAITTSModel,
		TranscribeTimeout: cfg.TranscribeTimeout,
		TTSTimeout:        cfg.TTSTimeout,
	})

	// 4. 記事の取得
	articles := article.NewSource(
		guard.NewSafeClient(cfg.FetchTimeout),
		guard,
		sanitizer,
		article.Config{
			FeedURLs:    cfg.NewsFeedURLs,
			Timeout:     cfg.FetchTimeout,
			MaxBodySize: cfg.FetchMaxSize,
			CacheTTL:    cfg.ArticleCacheTTL,
		},
		collector,
		log,
	)

	// 5. ドメインサービス
	ledger := subscription.NewService(accountRepo, cfg.TrialQuotaMinutes, log)
	sessionService := session.NewService(session.Deps{
		Registry:  session.NewRegistry(),
		Articles:  articles,
		Summarize: article.NewSummarizer(completer, log),
		Questions: article.NewQuestionGenerator(completer, log),
		Feedback:  feedback.NewAnalyzer(completer, log, collector),
		Lessons:   lesson.NewGenerator(completer, log),
		Store:     store,
		Ledger:    ledger,
		Speech:    speechClient,
		SideCalls: sidecall.NewRunner(log, collector),
		Recorder:  collector,
		Logger:    log,
		TrialDays: cfg.TrialDays,
	})

	return &services{
		session:     sessionService,
		tutor:       tutor.New(completer, log),
		appFeedback: appfeedback.NewService(appFeedbackRepo, sanitizer, log),
		ledger:      ledger,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	svc := buildServices(cfg, db, collector, slog.Default())

	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitMetered))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		TokenVerifier:     auth.NewVerifier(cfg.JWTSecret),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    rateLimiter,
		StatusRecorder: collector,

		HealthChecker:  db,
		MetricsHandler: metrics.SetupMetricsRoute(registry),

		SessionService:     svc.session,
		LessonService:      svc.session,
		DashboardService:   svc.session,
		SpeechService:      svc.session,
		Tutor:              svc.tutor,
		AppFeedbackService: svc.appFeedback,
	})

	// 書き込みタイムアウトは外部APIの最長タイムアウトより長くとる
	writeTimeout := max(cfg.LLMTimeout, cfg.TranscribeTimeout, cfg.TTSTimeout) + 15*time.Second

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、今期使用量のリセットジョブと保持期間ジョブを並行して定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	ledger := subscription.NewService(repository.NewPostgresAccountRepo(db), cfg.TrialQuotaMinutes, slog.Default())
	resetJob := usagereset.NewJob(ledger, slog.Default())
	cleanupJob := cleanup.NewCleanupJob(db, cfg.RetentionDays, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("usage_reset_check_interval", cfg.UsageResetCheckInterval),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("retention_days", cfg.RetentionDays),
	)

	var g errgroup.Group
	g.Go(func() error {
		resetJob.Start(ctx, cfg.UsageResetCheckInterval)
		return nil
	})
	g.Go(func() error {
		cleanupJob.Start(ctx, cfg.CleanupInterval)
		return nil
	})
	_ = g.Wait()

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runAccount は無料体験アカウントを開設する。既に存在する場合は何もしない。
func runAccount(cfg *config.Config, args []string, out io.Writer) error {
	email, err := parseAccountArgs(args)
	if err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ledger := subscription.NewService(repository.NewPostgresAccountRepo(db), cfg.TrialQuotaMinutes, slog.Default())
	account, created, err := ledger.OpenAccount(context.Background(), email, cfg.TrialDays)
	if err != nil {
		return fmt.Errorf("failed to open account: %w", err)
	}

	if created {
		fmt.Fprintf(out, "created %s (plan=%s status=%s)\n", account.Email, account.Plan, account.Status)
	} else {
		fmt.Fprintf(out, "exists %s (plan=%s status=%s)\n", account.Email, account.Plan, account.Status)
	}
	return nil
}

// runPlan は支払いイベントなどによるプラン変更を反映する。
func runPlan(cfg *config.Config, args []string, out io.Writer) error {
	email, plan, status, err := parsePlanArgs(args)
	if err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ledger := subscription.NewService(repository.NewPostgresAccountRepo(db), cfg.TrialQuotaMinutes, slog.Default())
	view, err := ledger.ApplyPlanChange(context.Background(), email, plan, status)
	if err != nil {
		return fmt.Errorf("failed to apply plan change: %w", err)
	}

	fmt.Fprintf(out, "updated %s (plan=%s status=%s)\n", email, view.Plan, view.Status)
	return nil
}

func parseAccountArgs(args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", errors.New("usage: account <email>")
	}
	return strings.TrimSpace(args[0]), nil
}

func parsePlanArgs(args []string) (string, model.Plan, model.SubscriptionStatus, error) {
	if len(args) != 3 {
		return "", "", "", errors.New("usage: plan <email> <plan> <status>")
	}
	email := strings.TrimSpace(args[0])
	plan := model.Plan(strings.ToLower(args[1]))
	status := model.SubscriptionStatus(strings.ToLower(args[2]))
	if email == "" {
		return "", "", "", errors.New("email is required")
	}
	if !plan.Valid() {
		return "", "", "", fmt.Errorf("unknown plan %q", args[1])
	}
	if !status.Valid() {
		return "", "", "", fmt.Errorf("unknown status %q", args[2])
	}
	return email, plan, status, nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
