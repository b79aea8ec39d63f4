package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/verifix/internal/config"
	"github.com/hitoshi/verifix/internal/handler"
	"github.com/hitoshi/verifix/internal/inspect"
	"github.com/hitoshi/verifix/internal/logger"
	"github.com/hitoshi/verifix/internal/metrics"
	"github.com/hitoshi/verifix/internal/middleware"
	"github.com/hitoshi/verifix/internal/normalize"
	"github.com/hitoshi/verifix/internal/security"
	"github.com/hitoshi/verifix/internal/source"
)

// IO はコマンドの入出力先。
// レポートはStdoutに、JSONログはStderrに出力する。
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Init はアプリケーションの初期化を行う。
// ログを先に初期化してから環境変数を読み込み、LOG_LEVELを反映したロガーを返す。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logger.SetupDefault(w, level), nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(stdio IO, args []string) error {
	cmd, rest := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(fmt.Sprintf("http://localhost:%s", port))
	}

	cfg, log, err := Init(stdio.Stderr)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Debug("starting application",
		slog.String("command", string(cmd)),
		slog.String("report_format", cfg.ReportFormat),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandServe:
		return runServe(ctx, cfg, log, nil)
	case CommandNormalize:
		return runNormalize(ctx, cfg, log, stdio, rest)
	default:
		return runInspect(ctx, cfg, log, stdio, rest)
	}
}

// newNormalizer はRULES_FILEが指定されていればそのルールセットを、なければ組み込みルールを使う。
func newNormalizer(cfg *config.Config, log *slog.Logger) (*normalize.Normalizer, error) {
	rs := normalize.DefaultRuleSet()
	if cfg.RulesFile != "" {
		loaded, err := normalize.LoadRuleFile(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		rs = loaded
		log.Info("rule file loaded",
			slog.String("path", cfg.RulesFile),
			slog.Int("rules", len(rs.Rules)),
			slog.Int("denylist", len(rs.Denylist)),
		)
	}
	return normalize.New(rs, log)
}

// newSource は引数または INPUT_PATH から入力元を選ぶ。
func newSource(cfg *config.Config, log *slog.Logger, stdio IO, args []string) source.Source {
	arg := cfg.InputPath
	if len(args) > 0 {
		arg = args[0]
	}
	return source.New(arg, source.Options{
		Stdin:   stdio.Stdin,
		Guard:   security.NewURLGuard(),
		Timeout: cfg.FetchTimeout,
		MaxSize: cfg.FetchMaxSize,
		Retries: cfg.FetchRetries,
		Logger:  log,
	})
}

// runInspect は1件のユーザーレコードを検査し、結果をstdoutに出力する。
// デコード失敗は報告した上で正常終了とし、取得失敗と構文エラーのみエラーを返す。
func runInspect(ctx context.Context, cfg *config.Config, log *slog.Logger, stdio IO, args []string) error {
	format, err := inspect.ParseFormat(cfg.ReportFormat)
	if err != nil {
		return err
	}
	n, err := newNormalizer(cfg, log)
	if err != nil {
		return err
	}

	svc := inspect.NewService(n, metrics.Discard{}, log)
	_, err = svc.Run(ctx, newSource(cfg, log, stdio, args), stdio.Stdout, format)
	return err
}

// runNormalize は正規化後のドキュメントをインデント付きでstdoutに出力する。
func runNormalize(ctx context.Context, cfg *config.Config, log *slog.Logger, stdio IO, args []string) error {
	n, err := newNormalizer(cfg, log)
	if err != nil {
		return err
	}

	src := newSource(cfg, log, stdio, args)
	data, err := src.Read(ctx)
	if err != nil {
		return err
	}

	svc := inspect.NewService(n, metrics.Discard{}, log)
	doc, changes, err := svc.Normalize(ctx, data)
	if err != nil {
		return fmt.Errorf("%s: %w", src.Name(), err)
	}
	for _, r := range changes.Repairs {
		log.Info("repaired",
			slog.String("pointer", r.Pointer),
			slog.String("action", string(r.Action)),
		)
	}

	out, err := doc.Indent()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdio.Stdout, "%s\n", out)
	return err
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
// onListenが指定された場合は待ち受けアドレスを通知する。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger, onListen func(net.Addr)) error {
	n, err := newNormalizer(cfg, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral))
	defer rl.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		Metrics:           collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,
		InspectService:    inspect.NewService(n, collector, log),
		MaxBodySize:       cfg.FetchMaxSize,
		Gatherer:          reg,
	})

	server := &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", ":"+cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if onListen != nil {
		onListen(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runHealthcheck は/healthにHTTPリクエストを送り、結果を返す。
// コンテナのヘルスチェック用サブコマンド。
func runHealthcheck(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
