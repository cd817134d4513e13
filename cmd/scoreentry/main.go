package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/windtest/scoreentry/internal/handler"
	appI18n "github.com/windtest/scoreentry/internal/i18n"
	"github.com/windtest/scoreentry/internal/label"
	"github.com/windtest/scoreentry/internal/model"
	"github.com/windtest/scoreentry/internal/pipeline"
	"github.com/windtest/scoreentry/internal/record"
	"github.com/windtest/scoreentry/internal/record/notion"
	"github.com/windtest/scoreentry/internal/record/sqlite"
)

func main() {
	// Secrets like the integration token come from .env in development.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scoreentry",
		Short: "Validated score entry against an external record store",
	}

	serve := serveCmd()
	root.AddCommand(serve, submitCmd(), reportCmd(), recomputeCmd(), seedCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `scoreentry --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// storeFlags registers the flags every command that touches the store needs.
func storeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("backend", "notion", "Record store backend (notion, sqlite)")
	f.String("notion-token", "", "Notion integration token (or set SCOREENTRY_NOTION_TOKEN)")
	f.String("students-db", "", "Students database id")
	f.String("questions-db", "", "Questions database id")
	f.String("responses-db", "", "Responses database id")
	f.String("reports-db", "", "Reports database id")
	f.String("admin-user", "", "User id mentioned in completion comments (empty disables)")
	f.String("db", "scoreentry.db", "SQLite database path (sqlite backend)")
	f.String("duplicates", string(model.DuplicateAppend), "Duplicate response policy (append, supersede)")
	f.Int("retry-attempts", 3, "Attempts for transient store failures")
	f.StringP("lang", "l", "en", "Message language (en, ko)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP submission server",
		RunE:  runServe,
	}
	storeFlags(cmd)
	cmd.Flags().StringP("addr", "a", ":8080", "HTTP listen address")
	return cmd
}

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one score, or a batch of correct/incorrect marks",
		RunE:  runSubmit,
	}
	storeFlags(cmd)
	f := cmd.Flags()
	f.StringP("student", "s", "", "Student name (required)")
	f.StringP("question", "q", "", "Question label")
	f.Int("score", -1, "Score for the question")
	f.String("comment", "", "Optional comment recorded with the response")
	f.String("entered-by", "", "Identity token recorded with the response")
	f.String("correct", "", "Question labels answered correctly (comma separated)")
	f.String("incorrect", "", "Question labels answered incorrectly (comma separated)")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the stored report aggregate for a student",
		RunE:  runReport,
	}
	storeFlags(cmd)
	cmd.Flags().StringP("student", "s", "", "Student name (required)")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}

func recomputeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild a student's report aggregate from response records",
		RunE:  runRecompute,
	}
	storeFlags(cmd)
	cmd.Flags().StringP("student", "s", "", "Student name (required)")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load students and questions from a JSON file into the store",
		RunE:  runSeed,
	}
	storeFlags(cmd)
	cmd.Flags().StringP("file", "f", "", "Reference data JSON file (required)")
	_ = cmd.MarkFlagRequired("file")
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
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SCOREENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("scoreentry")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/scoreentry")
	v.AddConfigPath("/etc/scoreentry")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func buildConfig(v *viper.Viper) *model.Config {
	return &model.Config{
		Backend:       strings.ToLower(v.GetString("backend")),
		NotionToken:   v.GetString("notion-token"),
		StudentsDB:    v.GetString("students-db"),
		QuestionsDB:   v.GetString("questions-db"),
		ResponsesDB:   v.GetString("responses-db"),
		ReportsDB:     v.GetString("reports-db"),
		AdminUserID:   v.GetString("admin-user"),
		DBPath:        v.GetString("db"),
		Duplicates:    model.DuplicatePolicy(v.GetString("duplicates")),
		RetryAttempts: v.GetInt("retry-attempts"),
		Lang:          v.GetString("lang"),
	}
}

// buildStore opens the configured backend and wraps it with the retry
// decorator so transient store failures are absorbed uniformly.
func buildStore(cfg *model.Config) (record.Store, func(), error) {
	switch cfg.Backend {
	case "sqlite":
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		return record.WithRetry(s, cfg.RetryAttempts), func() { s.Close() }, nil
	case "notion":
		if cfg.NotionToken == "" {
			return nil, nil, fmt.Errorf("notion token is required: set --notion-token or SCOREENTRY_NOTION_TOKEN")
		}
		c := notion.New(cfg)
		return record.WithRetry(c, cfg.RetryAttempts), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q (want notion or sqlite)", cfg.Backend)
	}
}

// setup does the shared command preamble: logging, config, i18n, store.
func setup(cmd *cobra.Command) (*model.Config, record.Store, func(), error) {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	cfg := buildConfig(v)

	if err := appI18n.Init(cfg.Lang); err != nil {
		return nil, nil, nil, fmt.Errorf("init i18n: %w", err)
	}
	store, closeStore, err := buildStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, store, closeStore, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, store, closeStore, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	h := handler.New(store, cfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(cfg.Lang))
	h.Routes(r)

	v := viperForCmd(cmd)
	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"backend", cfg.Backend,
		"duplicates", cfg.Duplicates,
		"lang", cfg.Lang,
	)
	return http.ListenAndServe(addr, r)
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	cfg, store, closeStore, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	v := viperForCmd(cmd)
	ctx := localeCtx(cfg)
	p := pipeline.New(store, cfg)

	correct := label.ParseList(v.GetString("correct"))
	incorrect := label.ParseList(v.GetString("incorrect"))
	if len(correct) > 0 || len(incorrect) > 0 {
		return runBatchSubmit(ctx, p, v, correct, incorrect)
	}

	if v.GetString("question") == "" {
		return fmt.Errorf("either --question/--score or --correct/--incorrect is required")
	}
	score := v.GetInt("score")
	if score < 0 {
		return fmt.Errorf("--score is required for single submission")
	}

	entry := model.ScoreEntry{
		StudentName:   v.GetString("student"),
		QuestionLabel: v.GetString("question"),
		Score:         &score,
		Comment:       v.GetString("comment"),
		EnteredBy:     v.GetString("entered-by"),
	}
	out := p.Process(ctx, entry)
	printOutcome(ctx, out)
	if !out.OK {
		os.Exit(1)
	}
	return nil
}

// runBatchSubmit scores each listed question at its maximum (correct) or at
// zero (incorrect). Labels resolve through the same pipeline as single entry.
func runBatchSubmit(ctx context.Context, p *pipeline.Pipeline, v *viper.Viper, correct, incorrect []string) error {
	questions, err := p.ListQuestions(ctx)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	maxByLabel := make(map[string]int, len(questions))
	for _, q := range questions {
		maxByLabel[q.Label] = q.MaxScore
	}

	type batchItem struct {
		label string
		score int
	}
	var items []batchItem
	for _, l := range correct {
		max, ok := maxByLabel[l]
		if !ok {
			return fmt.Errorf("unknown question label %q", l)
		}
		items = append(items, batchItem{label: l, score: max})
	}
	for _, l := range incorrect {
		if _, ok := maxByLabel[l]; !ok {
			return fmt.Errorf("unknown question label %q", l)
		}
		items = append(items, batchItem{label: l, score: 0})
	}

	failed := 0
	for _, it := range items {
		score := it.score
		out := p.Process(ctx, model.ScoreEntry{
			StudentName:   v.GetString("student"),
			QuestionLabel: it.label,
			Score:         &score,
			EnteredBy:     v.GetString("entered-by"),
		})
		printOutcome(ctx, out)
		if !out.OK {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d submissions failed", failed, len(items))
	}
	return nil
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, store, closeStore, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	v := viperForCmd(cmd)
	ctx := localeCtx(cfg)
	agg, err := pipeline.New(store, cfg).Report(ctx, v.GetString("student"))
	if err != nil {
		return err
	}
	printAggregate(v.GetString("student"), agg)
	return nil
}

func runRecompute(cmd *cobra.Command, _ []string) error {
	cfg, store, closeStore, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	v := viperForCmd(cmd)
	ctx := localeCtx(cfg)
	agg, err := pipeline.New(store, cfg).Recompute(ctx, v.GetString("student"))
	if err != nil {
		return err
	}
	color.Green("Report rebuilt from response records.")
	printAggregate(v.GetString("student"), agg)
	return nil
}

// seedFile is the reference-data format loaded by the seed command.
type seedFile struct {
	Students []struct {
		Name string `json:"name"`
	} `json:"students"`
	Questions []struct {
		Label    string `json:"label"`
		TestName string `json:"test_name"`
		MaxScore int    `json:"max_score"`
	} `json:"questions"`
}

func runSeed(cmd *cobra.Command, _ []string) error {
	_, store, closeStore, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	v := viperForCmd(cmd)
	path := v.GetString("file")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	ctx := context.Background()
	for _, s := range seed.Students {
		existing, err := store.QueryRecords(ctx, model.CollectionStudents,
			record.Filter{Field: record.FieldName, Equals: s.Name})
		if err != nil {
			return fmt.Errorf("check student %s: %w", s.Name, err)
		}
		if len(existing) > 0 {
			slog.Info("student already present, skipping", "name", s.Name)
			continue
		}
		if _, err := store.CreateRecord(ctx, model.CollectionStudents, map[string]any{
			record.FieldName: s.Name,
		}); err != nil {
			return fmt.Errorf("create student %s: %w", s.Name, err)
		}
	}
	for _, q := range seed.Questions {
		norm := label.Normalize(q.Label)
		existing, err := store.QueryRecords(ctx, model.CollectionQuestions,
			record.Filter{Field: record.FieldLabel, Equals: norm})
		if err != nil {
			return fmt.Errorf("check question %s: %w", norm, err)
		}
		if len(existing) > 0 {
			slog.Info("question already present, skipping", "label", norm)
			continue
		}
		if _, err := store.CreateRecord(ctx, model.CollectionQuestions, map[string]any{
			record.FieldLabel:    norm,
			record.FieldTestName: q.TestName,
			record.FieldMaxScore: q.MaxScore,
		}); err != nil {
			return fmt.Errorf("create question %s: %w", norm, err)
		}
	}
	slog.Info("seeded reference data",
		"path", path, "students", len(seed.Students), "questions", len(seed.Questions))
	return nil
}

// localeCtx gives CLI commands the same localized messages the HTTP API emits.
func localeCtx(cfg *model.Config) context.Context {
	return appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(cfg.Lang))
}

func printOutcome(ctx context.Context, out pipeline.SubmissionOutcome) {
	msg := pipeline.Describe(ctx, out)
	switch {
	case out.OK:
		color.Green(msg)
	case out.Partial:
		color.Yellow(msg)
	default:
		color.Red(msg)
	}
}

func printAggregate(student string, agg model.ReportAggregate) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Student", "Total", "Answers"})
	table.Append([]string{student, strconv.Itoa(agg.Total), strconv.Itoa(agg.Count)})
	table.Render()
}
