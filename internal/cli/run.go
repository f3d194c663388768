package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ContentPipeline/internal/app"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/infrastructure/storage"
	"ContentPipeline/internal/logging"
)

func newRunCommand(v *viper.Viper) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline run and print its report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Logging.Level)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			report, err := application.Run(ctx)
			if errors.Is(err, app.ErrRunInProgress) {
				logger.Warn("skipping run", "reason", err)
				return nil
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Fprintln(out, renderReport(report))
			return nil
		},
	}

	cmd.Flags().Int("batch-size", 0, "override pipeline.batchSize for this run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	_ = v.BindPFlag("batch-size", cmd.Flags().Lookup("batch-size"))
	return cmd
}

func newServeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run on the configured cron schedule and expose metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Logging.Level)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Serve(ctx)
		},
	}
}

func newHistoryCommand(v *viper.Viper) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently published articles from the local archive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			application, err := app.New(cmd.Context(), cfg, logging.New(cfg.Logging.Level))
			if err != nil {
				return err
			}
			defer application.Close()

			rows, err := application.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHistory(rows))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of articles to show")
	return cmd
}

func renderReport(report domain.Report) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("Run " + report.RunID)
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Total", report.Total},
		{"Processed", report.Processed},
		{"Skipped", report.Skipped},
		{"Duplicates", report.Duplicates},
		{"Already claimed", report.AlreadyClaimed},
		{"Excluded", report.Excluded},
		{"Aborted", strconv.FormatBool(report.Aborted)},
	})
	if report.AbortReason != "" {
		tw.AppendRow(table.Row{"Abort reason", report.AbortReason})
	}
	if !report.FinishedAt.IsZero() {
		tw.AppendRow(table.Row{"Duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String()})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func renderHistory(rows []storage.ArchivedArticle) string {
	if len(rows) == 0 {
		return "no published articles"
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Published", "Title", "URL", "Run"})
	for _, row := range rows {
		tw.AppendRow(table.Row{
			row.Article.PublishedAt.Format(time.RFC3339),
			text.Trim(row.Article.Title, 60),
			row.Article.URL,
			row.RunID,
		})
	}
	return tw.Render()
}
