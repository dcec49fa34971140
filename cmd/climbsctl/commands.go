package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"climbs/api/internal/aggregate"
	"climbs/api/internal/app"
	"climbs/api/internal/config"
	"climbs/api/internal/credential"
	"climbs/api/internal/moderation"
	"climbs/api/internal/record"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, closeStore, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s).\n", cfg.DatabaseDriver)
			return nil
		},
	}
}

func newPendingCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List rows awaiting moderation, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *app.Service, cfg config.Config) error {
				queue, err := svc.Pending(cmd.Context(), moderationPassword(cfg))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), queue)
				}
				writeQueue(cmd.OutOrStdout(), queue, time.Now())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the queue as JSON")
	return cmd
}

func newCanApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "can-approve <hash>",
		Short: "Check whether an ascent's climb and athlete are approved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *app.Service, cfg config.Config) error {
				verdict, err := svc.CanApprove(cmd.Context(), moderationPassword(cfg), args[0])
				if err != nil {
					return err
				}
				if verdict.Allowed {
					fmt.Fprintln(cmd.OutOrStdout(), "allowed")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "blocked: %s\n", verdict.Reason)
				return nil
			})
		},
	}
}

func newDecisionCmd(decision string) *cobra.Command {
	return &cobra.Command{
		Use:   decision + " <kind> <hash>",
		Short: fmt.Sprintf("Mark a pending row %s", map[string]string{"approve": "valid", "reject": "rejected"}[decision]),
		Long:  "kind is one of athletes, climbs or ascents (singular forms are accepted).",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *app.Service, cfg config.Config) error {
				confirmation, err := svc.Decide(cmd.Context(), moderation.Request{
					Kind:       args[0],
					Hash:       args[1],
					Decision:   decision,
					Credential: moderationPassword(cfg),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", confirmation.Kind, confirmation.Hash, confirmation.Decision.Status())
				return nil
			})
		},
	}
}

func newExportCmd() *cobra.Command {
	var (
		output  string
		publish bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the current dataset as JSON",
		Long:  "Writes the current athletes, climbs and ascents to a file or stdout. With --publish the dataset is uploaded to object storage instead.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *app.Service, cfg config.Config) error {
				if publish {
					location, err := svc.Publish(cmd.Context(), moderationPassword(cfg))
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Published %s/%s (%d bytes)\n", location.Bucket, location.Object, location.Size)
					return nil
				}

				dataset, err := svc.Export(cmd.Context())
				if err != nil {
					return err
				}
				if output == "" {
					return writeJSON(cmd.OutOrStdout(), dataset)
				}
				return writeDatasetFile(output, dataset)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&publish, "publish", false, "Upload to the configured object storage bucket")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for CLIMBS_MODERATION_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := credential.Hash(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writeDatasetFile(path string, dataset aggregate.Dataset) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer file.Close()
	if err := writeJSON(file, dataset); err != nil {
		return fmt.Errorf("writing dataset: %w", err)
	}
	return nil
}

func writeQueue(w io.Writer, queue moderation.Queue, now time.Time) {
	if queue.Len() == 0 {
		fmt.Fprintln(w, "Nothing awaiting review.")
		return
	}

	fmt.Fprintf(w, "%d rows awaiting review:\n", queue.Len())
	for _, row := range queue.Athletes {
		fmt.Fprintf(w, "\n[%s] %s  %s\n", record.KindAthlete, row.Hash, age(row.Meta, now))
		fmt.Fprintf(w, "  Name: %s\n", row.Name)
		if row.Nationality != "" {
			fmt.Fprintf(w, "  Nationality: %s\n", row.Nationality)
		}
	}
	for _, row := range queue.Climbs {
		fmt.Fprintf(w, "\n[%s] %s  %s\n", record.KindClimb, row.Hash, age(row.Meta, now))
		fmt.Fprintf(w, "  Name: %s (%s %s)\n", row.Name, row.Type, row.Grade)
	}
	for _, row := range queue.Ascents {
		fmt.Fprintf(w, "\n[%s] %s  %s\n", record.KindAscent, row.Hash, age(row.Meta, now))
		fmt.Fprintf(w, "  %s on %s, %s\n", row.AthleteName, row.ClimbName, row.DateOfAscent)
		if row.Verdict.Allowed {
			fmt.Fprintln(w, "  Approvable: yes")
		} else {
			fmt.Fprintf(w, "  Approvable: no (%s)\n", strings.Join(row.Verdict.Reasons, "; "))
		}
	}
}

func age(meta record.Meta, now time.Time) string {
	return "waiting " + moderation.Age(meta, now).Truncate(time.Minute).String()
}
