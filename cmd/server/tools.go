package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmynk/susu/internal/auth"
	"github.com/mmynk/susu/internal/models"
	"github.com/mmynk/susu/internal/scheduler"
)

func newTokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a caller token signed with JWT_SECRET",
		Example: `  susu token --user u1
  susu token --user ops --role admin --ttl 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := auth.NewJWTManager(cfg.JWTSecret, ttl).Generate(models.Actor{
				UserID: userID,
				Role:   models.Role(role),
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id the token identifies")
	cmd.Flags().StringVar(&role, "role", string(models.RoleMember), "role: member, admin, super_admin or support")
	cmd.Flags().DurationVar(&ttl, "ttl", tokenTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "run-job <name>",
		Short:     "Run one background job immediately and exit",
		Example:   "  susu run-job " + scheduler.JobOpenCycles,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{scheduler.JobOpenCycles, scheduler.JobGraceReminders, scheduler.JobPromotePayouts},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.jobs.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d processed\n", args[0], n)
			return err
		},
	}
}
