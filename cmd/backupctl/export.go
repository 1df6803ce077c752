package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/edvin/tenant-backup/internal/api/request"
	"github.com/edvin/tenant-backup/internal/runner"
)

var (
	flagExportTenant       string
	flagExportModules      []string
	flagExportStart        string
	flagExportEnd          string
	flagExportIncludePII   bool
	flagExportIncludeFiles bool
	flagExportActor        string
	flagExportTimeout      time.Duration
)

// heldScheduler keeps created jobs so the command can run them itself.
type heldScheduler struct {
	ids []string
}

func (s *heldScheduler) Enqueue(jobID string) error {
	s.ids = append(s.ids, jobID)
	return nil
}

func (s *heldScheduler) Cancel(string) bool { return false }

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Create a backup job and run it in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagExportTenant == "" {
			return fmt.Errorf("--tenant is required")
		}
		ctx, cancel := context.WithTimeout(context.Background(), flagExportTimeout)
		defer cancel()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		filters, err := request.CreateBackupJob{
			Modules:      flagExportModules,
			StartDate:    flagExportStart,
			EndDate:      flagExportEnd,
			IncludeFiles: &flagExportIncludeFiles,
			IncludePII:   flagExportIncludePII,
		}.Filters(a.Config.Location())
		if err != nil {
			return err
		}

		held := &heldScheduler{}
		job, err := a.NewManager(held).Create(ctx, flagExportTenant, flagExportActor, filters)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "running %s (%s)\n", job.Token, job.ID)

		runErr := a.Runner.Run(ctx, job.ID)
		done, err := a.Manager.Get(context.WithoutCancel(ctx), job.ID)
		if err != nil {
			return err
		}
		if flagJSON {
			if err := printJSON(done); err != nil {
				return err
			}
		} else {
			renderJob(os.Stdout, done, nil, time.Now())
		}
		return runErr
	},
}

func init() {
	exportCmd.Flags().StringVar(&flagExportTenant, "tenant", "", "Tenant ID (required)")
	exportCmd.Flags().StringSliceVar(&flagExportModules, "modules", nil, "Modules to export (default: all)")
	exportCmd.Flags().StringVar(&flagExportStart, "start", "", "Start date, YYYY-MM-DD or RFC3339")
	exportCmd.Flags().StringVar(&flagExportEnd, "end", "", "End date, YYYY-MM-DD or RFC3339 (inclusive)")
	exportCmd.Flags().BoolVar(&flagExportIncludePII, "include-pii", false, "Keep personal data unmasked")
	exportCmd.Flags().BoolVar(&flagExportIncludeFiles, "include-files", true, "Write the files index")
	exportCmd.Flags().StringVar(&flagExportActor, "actor", runner.SystemActor, "Actor recorded on the job")
	exportCmd.Flags().DurationVar(&flagExportTimeout, "timeout", 2*time.Hour, "Give up after this long")
}
