package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/lesson-scheduler-api/internal/models"
	"github.com/noah-isme/lesson-scheduler-api/internal/service"
	"github.com/noah-isme/lesson-scheduler-api/pkg/roster"
)

type validateReport struct {
	Validation models.ValidationResult  `json:"validation"`
	Warnings   []models.ScheduleWarning `json:"warnings"`
}

func newValidateCmd(opts *cliOptions) *cobra.Command {
	var studentsPath, recurringPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check recurring lessons against the roster without solving",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := loadRuntime(opts)
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			studentsFile, err := os.Open(studentsPath)
			if err != nil {
				return fmt.Errorf("open students file: %w", err)
			}
			defer studentsFile.Close()
			students, err := roster.ParseStudents(studentsFile)
			if err != nil {
				return err
			}

			recurringFile, err := os.Open(recurringPath)
			if err != nil {
				return fmt.Errorf("open recurring file: %w", err)
			}
			defer recurringFile.Close()
			prefixed, err := roster.ParseRecurring(recurringFile, students)
			if err != nil {
				return err
			}

			report := validateReport{
				Validation: newEngine(cfg, logr).Validate(students, prefixed, nil),
				Warnings:   service.SingleStudentWarnings(prefixed, students),
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(report); err != nil {
				return err
			}
			if !report.Validation.Valid {
				return fmt.Errorf("recurring lessons are invalid: %d error(s)", len(report.Validation.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&studentsPath, "students", "s", "", "Availability CSV file")
	cmd.Flags().StringVarP(&recurringPath, "recurring", "r", "", "Recurring lessons CSV file")
	_ = cmd.MarkFlagRequired("students")
	_ = cmd.MarkFlagRequired("recurring")
	return cmd
}
