// Package main provides the CLI entrypoint for loqa-interview.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-interview/internal/api"
	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/loqalabs/loqa-interview/internal/eventstore"
	"github.com/loqalabs/loqa-interview/internal/runtime"
	"github.com/loqalabs/loqa-interview/internal/session"
	"github.com/loqalabs/loqa-interview/internal/telemetry"
	"github.com/loqalabs/loqa-interview/internal/tui"
)

var version = "0.1.0-dev"

var (
	configPath string
	envFile    string

	cfg       config.Config
	logger    *slog.Logger
	logCloser io.Closer

	practiceAudioFile string

	listSearch     string
	listCompany    string
	listDifficulty []string
	listTag        string
	listPage       int
	listLimit      int
	listSortBy     string
	listSortOrder  string

	historyLimit  int
	historyEvents bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "loqa-interview",
		Short:             "Spoken interview practice with pronunciation scoring",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if logCloser != nil {
				_ = logCloser.Close()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")

	rootCmd.AddCommand(newPracticeCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newRetakeCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Name() == "practice" {
		// the TUI owns the terminal, so logs and traces go elsewhere
		if cfg.Telemetry.LogFile == "" {
			cfg.Telemetry.LogFile = filepath.Join(os.TempDir(), "loqa-interview.log")
		}
		cfg.Telemetry.TraceStdout = false
	}
	logger, logCloser = telemetry.NewLogger(cfg.Telemetry, os.Stderr)
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newPracticeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "practice <interviewId>",
		Short: "Answer an interview's questions out loud",
		Args:  cobra.ExactArgs(1),
		RunE:  runPracticeCmd,
	}
	cmd.Flags().StringVar(&practiceAudioFile, "audio-file", "", "replay a WAV file instead of the microphone")
	return cmd
}

func runPracticeCmd(_ *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	interviewID := args[0]

	shutdownTelemetry, metricsHandler, err := telemetry.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slogError(err))
		}
	}()
	if bind := strings.TrimSpace(cfg.Telemetry.PrometheusBind); bind != "" {
		stopMetrics := serveMetrics(bind, metricsHandler)
		defer stopMetrics()
	}

	userID, err := resolveUserID(cfg.API)
	if err != nil {
		return err
	}
	client := api.NewClient(cfg.API, logger)
	details, err := client.GetInterview(ctx, interviewID)
	if err != nil {
		return fmt.Errorf("failed to load interview: %w", err)
	}
	questions := session.QuestionsFromAPI(details)
	if len(questions) == 0 {
		return fmt.Errorf("interview %s has no questions", interviewID)
	}

	capture, err := newCapture(cfg.Audio, practiceAudioFile, logger)
	if err != nil {
		return err
	}
	recognizer, closeRecognizer, err := newRecognizer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRecognizer()
	assessor, err := newAssessor(cfg.Assessor, logger)
	if err != nil {
		return err
	}

	speaker, err := newSpeaker(cfg.Prompt, logger)
	if err != nil {
		return err
	}

	journal, err := eventstore.Open(ctx, cfg.EventStore, logger)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer journal.Close()
	if err := journal.Prune(ctx); err != nil {
		logger.Warn("journal prune failed", slogError(err))
	}

	ctrl, err := session.New(session.Options{
		UserID:      userID,
		InterviewID: interviewID,
		Questions:   questions,
		Attempt:     max(details.TotalAttempts, 1),
		MaxAttempts: cfg.Session.MaxAttempts,
		Tick:        time.Duration(cfg.Session.TickMS) * time.Millisecond,
		Capture:     capture,
		Recognizer:  recognizer,
		Assessor:    assessor,
		Backend:     client,
		Journal:     journal,
		Speaker:     speaker,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	title := details.Name
	if details.Role != "" {
		title = fmt.Sprintf("%s · %s", details.Name, details.Role)
	}
	program := tea.NewProgram(tui.NewModel(ctx, ctrl, title), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <interviewId>",
		Short: "Show an interview's details before practicing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			meta, err := api.NewClient(cfg.API, logger).GetInterviewMeta(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load interview: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Interview Details: %s\n", meta.Name)
			fmt.Fprintf(out, "Company:    %s\n", meta.Company)
			fmt.Fprintf(out, "Role:       %s\n", meta.Role)
			fmt.Fprintf(out, "Difficulty: %s\n", meta.Difficulty)
			fmt.Fprintf(out, "\nStart with: loqa-interview practice %s\n", args[0])
			return nil
		},
	}
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <interviewId>",
		Short: "Show the final report for an interview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			userID, err := resolveUserID(cfg.API)
			if err != nil {
				return err
			}
			report, err := api.NewClient(cfg.API, logger).GetResult(ctx, userID, args[0])
			if err != nil {
				return fmt.Errorf("failed to fetch report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderReport(report, cfg.Session.MaxAttempts))
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available interviews",
		Args:  cobra.NoArgs,
		RunE:  runListCmd,
	}
	cmd.Flags().StringVar(&listSearch, "search", "", "search text")
	cmd.Flags().StringVar(&listCompany, "company", "", "filter by company")
	cmd.Flags().StringSliceVar(&listDifficulty, "difficulty", nil, "filter by difficulty (easy, medium, hard)")
	cmd.Flags().StringVar(&listTag, "tag", "", "filter by tag")
	cmd.Flags().IntVar(&listPage, "page", 1, "page number")
	cmd.Flags().IntVar(&listLimit, "limit", 10, "interviews per page")
	cmd.Flags().StringVar(&listSortBy, "sort-by", "createdAt", "sort field")
	cmd.Flags().StringVar(&listSortOrder, "order", "desc", "sort order (asc or desc)")
	return cmd
}

func runListCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()
	req := api.ListRequest{
		Pagination: &api.Pagination{Page: listPage, Limit: listLimit},
		Sorting:    &api.Sorting{SortBy: listSortBy, SortOrder: listSortOrder},
	}
	if listSearch != "" || listCompany != "" || len(listDifficulty) > 0 || listTag != "" {
		req.Filters = &api.Filters{Search: listSearch, Company: listCompany, Difficulty: listDifficulty, Tag: listTag}
	}
	resp, err := api.NewClient(cfg.API, logger).ListInterviews(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to list interviews: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCOMPANY\tROLE\tDIFFICULTY\tSTATUS")
	for _, iv := range resp.Interviews {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", iv.ID, iv.Name, iv.Company, iv.Role, iv.Difficulty, iv.Status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "page %d, %d of %d interviews\n", resp.Page, len(resp.Interviews), resp.Total)
	return nil
}

func newRetakeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retake <interviewId>",
		Short: "Reset an interview for another attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			userID, err := resolveUserID(cfg.API)
			if err != nil {
				return err
			}
			client := api.NewClient(cfg.API, logger)
			current, err := client.GetResult(ctx, userID, args[0])
			if err != nil {
				return fmt.Errorf("failed to fetch report: %w", err)
			}
			if current.Attempt >= cfg.Session.MaxAttempts {
				return session.ErrMaxAttempts
			}
			report, err := client.Retake(ctx, userID, args[0])
			if err != nil {
				return fmt.Errorf("retake failed: %w", err)
			}
			attempt := max(report.Attempt, current.Attempt+1)
			fmt.Fprintf(cmd.OutOrStdout(), "interview reset, attempt %d of %d\n", attempt, cfg.Session.MaxAttempts)
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [interviewId]",
		Short: "Show local practice sessions",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntVar(&historyLimit, "last", 20, "number of sessions to show")
	cmd.Flags().BoolVar(&historyEvents, "events", false, "include each session's timeline")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	interviewID := ""
	if len(args) == 1 {
		interviewID = args[0]
	}
	journal, err := eventstore.Open(ctx, cfg.EventStore, logger)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer journal.Close()

	sessions, err := journal.ListSessions(ctx, interviewID, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no practice sessions recorded")
		return nil
	}
	for _, sess := range sessions {
		fmt.Fprintf(out, "%s  %s  attempt %d  %s\n", sess.CreatedAt.Local().Format(time.DateTime), sess.InterviewID, sess.Attempt, sess.ID)
		if !historyEvents {
			continue
		}
		events, err := journal.ListSessionEvents(ctx, sess.ID, 0)
		if err != nil {
			return fmt.Errorf("failed to read session %s: %w", sess.ID, err)
		}
		for _, e := range events {
			fmt.Fprintf(out, "    %s  q%d  %-22s %s\n", e.CreatedAt.Local().Format(time.TimeOnly), e.QuestionIndex+1, e.Type, string(e.Payload))
		}
	}
	return nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local speech backend",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			engine, err := newEngine(cfg.STT)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			if err := runtime.New(cfg, logger, engine).Start(ctx); err != nil {
				return fmt.Errorf("runtime exited with error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
