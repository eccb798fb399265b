package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maargasystems/timesheet-ai/internal/ai"
	"github.com/maargasystems/timesheet-ai/internal/analysis"
	"github.com/maargasystems/timesheet-ai/internal/auditlog"
	"github.com/maargasystems/timesheet-ai/internal/config"
	"github.com/maargasystems/timesheet-ai/internal/msgraph"
	"github.com/maargasystems/timesheet-ai/internal/server"
	"github.com/maargasystems/timesheet-ai/internal/timesheet"
)

var rootCmd = &cobra.Command{
	Use:   "tsai",
	Short: "AI-powered timesheet analysis over a SharePoint list",
	Long:  "tsai fetches timesheet records from SharePoint via Microsoft Graph, routes plain-English questions to the right analysis, and produces an HTML report via an LLM.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis HTTP server",
	RunE:  runServe,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and print the report",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the timesheet list and archive a fresh snapshot",
	RunE:  runFetch,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Open the config file in your editor",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(errorStyle.Render("Error: " + err.Error()))
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newFetchFunc builds the snapshot fetcher: resolve the site once, then page
// through the list on every call.
func newFetchFunc(cfg *config.Config, client *msgraph.Client, logger *slog.Logger) timesheet.FetchFunc {
	var (
		mu     sync.Mutex
		siteID string
	)
	return func(ctx context.Context) (*timesheet.Table, error) {
		mu.Lock()
		defer mu.Unlock()

		if siteID == "" {
			id, err := client.SiteID(ctx, cfg.Graph.Hostname, cfg.Graph.SitePath)
			if err != nil {
				return nil, fmt.Errorf("resolving site: %w", err)
			}
			siteID = id
		}

		items, err := client.ListItems(ctx, msgraph.ListQuery{
			SiteID:   siteID,
			ListID:   cfg.Graph.ListID,
			Select:   timesheet.DefaultColumns,
			MaxItems: cfg.Graph.MaxItems,
		})
		if err != nil {
			return nil, fmt.Errorf("fetching timesheet list: %w", err)
		}

		logger.Info("timesheet data fetched", "rows", len(items))
		return timesheet.New(timesheet.DefaultColumns, items), nil
	}
}

// app bundles everything a command needs to run the pipeline.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *timesheet.Store
	archive  *timesheet.Archive
	fetch    timesheet.FetchFunc
	pipeline *analysis.Pipeline
	audit    *auditlog.Logger
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	archive, err := timesheet.OpenArchive(filepath.Join(cfg.Data.Dir, "snapshots.db"))
	if err != nil {
		return nil, err
	}

	audit, err := auditlog.Open(filepath.Join(cfg.Data.Dir, "analysis_audit.log"))
	if err != nil {
		logger.Warn("audit log unavailable, continuing without it", "error", err)
		audit = nil
	}

	auth := msgraph.NewAuth(cfg.Graph.ClientID, cfg.Graph.ClientSecret, cfg.Graph.TenantID, "", logger)
	client := msgraph.NewClient(auth, "", logger)
	store := timesheet.NewStore(logger)
	fetch := newFetchFunc(cfg, client, logger)

	provider := ai.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL, logger)
	pipeline := analysis.NewPipeline(store, provider, audit, logger, analysis.Options{
		ChunkSize:   cfg.Analysis.ChunkSize,
		PreviewRows: cfg.Analysis.PreviewRows,
		ReportDir:   cfg.Data.Dir,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		archive:  archive,
		fetch:    fetch,
		pipeline: pipeline,
		audit:    audit,
	}, nil
}

func (a *app) close() {
	a.archive.Close()
	a.audit.Close()
}

// loadSnapshot fills the store: archived snapshot first when allowed, then a
// live fetch when the store is still empty.
func (a *app) loadSnapshot(ctx context.Context, allowArchive bool) error {
	if allowArchive {
		snap, err := a.archive.LoadLatest()
		if err != nil {
			a.logger.Warn("snapshot archive unreadable", "error", err)
		} else if snap != nil {
			a.store.Restore(snap)
		}
	}

	if a.store.Current() != nil {
		return nil
	}

	t, err := a.fetch(ctx)
	if err != nil {
		return err
	}
	if t.Len() == 0 {
		return timesheet.ErrNoData
	}
	snap := a.store.Swap(t)
	if err := a.archive.Save(snap); err != nil {
		a.logger.Warn("failed to archive snapshot", "error", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := a.loadSnapshot(ctx, true); err != nil {
		return fmt.Errorf("loading initial snapshot: %w", err)
	}

	if a.cfg.Data.RefreshMinutes > 0 {
		go a.store.RunRefresh(ctx, time.Duration(a.cfg.Data.RefreshMinutes)*time.Minute, a.fetch, a.archive.Save)
	}

	timeout := time.Duration(a.cfg.Server.RequestTimeoutSeconds) * time.Second
	handler := server.NewHandler(a.pipeline, a.store, timeout, a.logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:    a.cfg.Server.Addr,
		Handler: server.WithCORS(mux),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info("server listening", "addr", a.cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	question := strings.Join(args, " ")

	ctx := context.Background()
	if err := a.loadSnapshot(ctx, true); err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}

	fmt.Println(titleStyle.Render("Analyzing timesheet data..."))
	fmt.Println(dimStyle.Render("Question: " + question))

	report, err := a.pipeline.Analyze(ctx, question)
	if err != nil {
		return err
	}

	fmt.Println(report)
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	t, err := a.fetch(ctx)
	if err != nil {
		return err
	}
	if t.Len() == 0 {
		return timesheet.ErrNoData
	}

	snap := a.store.Swap(t)
	if err := a.archive.Save(snap); err != nil {
		return fmt.Errorf("archiving snapshot: %w", err)
	}

	fmt.Println(successStyle.Render(fmt.Sprintf("Fetched %d rows (snapshot v%d)", t.Len(), snap.Version)))
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		fmt.Println("Config file:", path)
		return nil
	}

	c := exec.Command(editor, path)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}
