package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/lesson-scheduler-api/internal/dto"
	"github.com/noah-isme/lesson-scheduler-api/internal/models"
	"github.com/noah-isme/lesson-scheduler-api/internal/service"
)

type generateOptions struct {
	students  string
	recurring string
	blocked   []string
	title     string
	format    string
	part      string
	output    string
	strict    bool
}

func newGenerateCmd(opts *cliOptions) *cobra.Command {
	gen := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build a weekly schedule from CSV files",
		Long: `Build a weekly schedule from an availability file and an optional recurring lessons file.

Examples:
  # Markdown report on stdout
  schedulectl generate --students students.csv --format markdown

  # Keep Friday lunch free and write a PDF
  schedulectl generate --students students.csv --recurring recurring.csv \
    --blocked "friday 12:00-13:00" --format pdf --output schedule.pdf
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts, gen)
		},
	}
	cmd.Flags().StringVarP(&gen.students, "students", "s", "", "Availability CSV file")
	cmd.Flags().StringVarP(&gen.recurring, "recurring", "r", "", "Recurring lessons CSV file")
	cmd.Flags().StringArrayVarP(&gen.blocked, "blocked", "b", nil, `Blocked slot, e.g. "friday 12:00-13:00" (repeatable)`)
	cmd.Flags().StringVar(&gen.title, "title", "", "Title used in PDF output")
	cmd.Flags().StringVarP(&gen.format, "format", "f", "json", "Output format: json, markdown, csv or pdf")
	cmd.Flags().StringVar(&gen.part, "part", "schedule", "CSV part: schedule or unplaced")
	cmd.Flags().StringVarP(&gen.output, "output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().BoolVar(&gen.strict, "strict", false, "Fail when a student could not be placed")
	_ = cmd.MarkFlagRequired("students")
	return cmd
}

func runGenerate(cmd *cobra.Command, opts *cliOptions, gen *generateOptions) error {
	cfg, logr, err := loadRuntime(opts)
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	blocked := make([]models.Slot, 0, len(gen.blocked))
	for _, raw := range gen.blocked {
		slot, err := models.ParseSlot(raw)
		if err != nil {
			return err
		}
		blocked = append(blocked, slot)
	}

	studentsFile, err := os.Open(gen.students)
	if err != nil {
		return fmt.Errorf("open students file: %w", err)
	}
	defer studentsFile.Close()

	var recurring io.Reader
	if gen.recurring != "" {
		recurringFile, err := os.Open(gen.recurring)
		if err != nil {
			return fmt.Errorf("open recurring file: %w", err)
		}
		defer recurringFile.Close()
		recurring = recurringFile
	}

	generator := service.NewScheduleGeneratorService(newEngine(cfg, logr), nil, nil, nil, nil, nil, nil, logr.Named("scheduler"), service.ScheduleGeneratorConfig{
		MaxStudents: cfg.Scheduler.MaxStudents,
	})

	ctx := cmd.Context()
	proposal, err := generator.GenerateFromCSV(ctx, studentsFile, recurring, blocked, gen.title)
	if err != nil {
		return err
	}
	file, err := generator.Export(ctx, proposal.ProposalID, dto.ExportQuery{Format: gen.format, Part: gen.part})
	if err != nil {
		return err
	}

	if gen.output == "" {
		if _, err := cmd.OutOrStdout().Write(file.Content); err != nil {
			return err
		}
	} else if err := os.WriteFile(gen.output, file.Content, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	summary := proposal.Summary
	fmt.Fprintf(cmd.ErrOrStderr(), "%d classes, %d unplaced, placement %.1f%%\n", summary.TotalClasses, summary.TotalUnplaced, summary.PlacementRate)
	if gen.strict && !summary.IsComplete {
		return fmt.Errorf("%d student(s) could not be placed", summary.TotalUnplaced)
	}
	return nil
}
