package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/qbedit/internal/bank"
	"github.com/pavelanni/qbedit/internal/catalog"
	"github.com/pavelanni/qbedit/internal/client"
	"github.com/pavelanni/qbedit/internal/handler"
	appI18n "github.com/pavelanni/qbedit/internal/i18n"
	"github.com/pavelanni/qbedit/internal/llm"
	"github.com/pavelanni/qbedit/internal/model"
	"github.com/pavelanni/qbedit/internal/session"
	"github.com/pavelanni/qbedit/internal/store"
	"github.com/pavelanni/qbedit/internal/timefmt"
	"github.com/pavelanni/qbedit/internal/workflow"
)

//go:generate templ generate -path ../../internal/handler/views

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "error loading .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "qbedit",
		Short: "Question bank editor",
	}

	serve := serveCmd()
	root.AddCommand(serve, bankCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `qbedit --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func logFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Also write logs to this file, rotated by size")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the editor UI",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("api-url", "http://localhost:8081", "Question bank backend base URL")
	f.String("db", "qbedit.db", "SQLite database path for the saved session")
	f.String("catalog", "", "Subjects JSON file overriding the built-in catalog")
	f.StringP("lang", "l", "en", "Default UI language (en, hi)")
	f.Duration("timeout", 30*time.Second, "Timeout for backend requests")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /qb)")
	f.Bool("secure-cookies", false, "Set Secure flag on cookies")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty disables the writing assistant)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	logFlags(cmd)
	return cmd
}

func bankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bank",
		Short: "Run a development question bank backend",
		RunE:  runBank,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8081", "HTTP listen address")
	f.String("db", "qbank.db", "SQLite database path")
	f.StringSliceP("questions", "q", nil, "Paths to questions JSON files (repeatable)")
	f.String("admin-identifier", "", "Mobile number or email of the first staff account")
	f.String("admin-password", "", "Password of the first staff account (or set QBEDIT_ADMIN_PASSWORD)")
	f.Float64("login-rate", 1, "Login attempts per second per client IP")
	f.Int("login-burst", 5, "Login attempts allowed in a burst")
	f.Duration("session-ttl", bank.DefaultSessionTTL, "Lifetime of issued session tokens")
	logFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the questions of a subject and topic as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("api-url", "http://localhost:8081", "Question bank backend base URL")
	f.String("db", "qbedit.db", "SQLite database path holding the saved session")
	f.String("catalog", "", "Subjects JSON file overriding the built-in catalog")
	f.String("subject", "", "Subject code (required)")
	f.String("topic", "", "Topic (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.Duration("timeout", 30*time.Second, "Timeout for backend requests")
	logFlags(cmd)

	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if path := v.GetString("log-file"); path != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QBEDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("qbedit")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/qbedit")
	v.AddConfigPath("/etc/qbedit")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

// openSession restores the saved session and returns a backend client
// that authenticates with it.
func openSession(db *store.Store, apiURL string, timeout time.Duration) (*session.Store, *client.Client, error) {
	sess := session.New(db, nil)
	c := client.New(apiURL, timeout, sess)
	sess.SetAuthenticator(c)
	if err := sess.Restore(); err != nil {
		return nil, nil, err
	}
	return sess, c, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	apiURL := v.GetString("api-url")
	sess, repo, err := openSession(db, apiURL, v.GetDuration("timeout"))
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	cat, err := loadCatalog(v.GetString("catalog"))
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// The writing assistant is optional.
	var assistant workflow.Assistant
	if llmURL := v.GetString("llm-url"); llmURL != "" {
		llmClient, err := llm.New(llmURL, v.GetString("llm-key"), v.GetString("llm-model"), cat)
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		assistant = llmClient
		slog.Info("writing assistant enabled", "url", llmURL, "model", v.GetString("llm-model"))
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.ServerConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
	}
	ws := workflow.NewWorkspace(repo, cat, nil)
	h := handler.New(cfg, cat, sess, ws, assistant)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware())

	if basePath != "" {
		r.Route(basePath, h.Routes)
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting editor",
		"addr", addr,
		"api_url", apiURL,
		"lang", lang,
		"base_path", basePath,
		"authenticated", sess.Authenticated(),
		"assist", assistant != nil,
	)
	return http.ListenAndServe(addr, r)
}

func runBank(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := bank.SeedUser(db, v.GetString("admin-identifier"), v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed user: %w", err)
	}
	if _, err := bank.ImportFiles(db, v.GetStringSlice("questions"), time.Now()); err != nil {
		return fmt.Errorf("import questions: %w", err)
	}
	if n, err := db.PurgeExpiredSessions(time.Now()); err != nil {
		slog.Warn("failed to purge expired sessions", "error", err)
	} else if n > 0 {
		slog.Info("purged expired sessions", "count", n)
	}

	srv := bank.New(db, bank.Options{
		LoginRate:  v.GetFloat64("login-rate"),
		LoginBurst: v.GetInt("login-burst"),
		SessionTTL: v.GetDuration("session-ttl"),
	})
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	srv.Routes(r)

	count, err := db.QuestionCount()
	if err != nil {
		return fmt.Errorf("count questions: %w", err)
	}
	addr := v.GetString("addr")
	slog.Info("starting question bank", "addr", addr, "questions", count)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	sess, c, err := openSession(db, v.GetString("api-url"), v.GetDuration("timeout"))
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !sess.Authenticated() {
		return errors.New("not logged in: sign in through `qbedit serve` first")
	}

	cat, err := loadCatalog(v.GetString("catalog"))
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	criteria := model.SelectionCriteria{Subject: v.GetString("subject"), Topic: v.GetString("topic")}
	resp, err := c.FetchQuestions(context.Background(), criteria)
	if err != nil {
		if client.IsAuth(err) {
			return fmt.Errorf("session expired, sign in again: %w", err)
		}
		return fmt.Errorf("fetch questions: %w", err)
	}

	questions := resp.Questions
	if questions == nil {
		questions = []model.Question{}
	}
	for i := range questions {
		questions[i].CreatedAt = timefmt.ToIST(questions[i].CreatedAt)
		questions[i].UpdatedAt = timefmt.ToIST(questions[i].UpdatedAt)
	}

	export := model.QuestionExport{
		Subject:     criteria.Subject,
		SubjectName: cat.Name(criteria.Subject),
		Topic:       criteria.Topic,
		ExportedAt:  timefmt.Now(time.Now()),
		TotalCount:  len(questions),
		Questions:   questions,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported questions", "subject", criteria.Subject, "topic", criteria.Topic, "count", len(questions))
	return nil
}
