package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ameet2r/workout/internal/store"
)

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new session from a workout plan and print its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			planID, _ := cmd.Flags().GetString("plan")
			notes, _ := cmd.Flags().GetString("notes")

			logger, closeLog := newLogger(cfg)
			defer closeLog()
			client := store.NewClient(cfg.Store.URL, cfg.Store.Token, cfg.Store.Timeout, logger)

			in := store.SessionCreate{WorkoutPlanID: &planID}
			if notes != "" {
				in.Notes = &notes
			}
			created, err := client.CreateSession(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("starting session from plan %s: %w", planID, err)
			}
			fmt.Fprintln(os.Stdout, created.ID)
			return nil
		},
	}
	cmd.Flags().String("plan", "", "workout plan id")
	cmd.Flags().String("notes", "", "session notes")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}
