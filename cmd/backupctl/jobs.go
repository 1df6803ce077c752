package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/edvin/tenant-backup/internal/model"
	"github.com/edvin/tenant-backup/internal/runner"
)

var (
	flagListTenant string
	flagListLimit  int
	flagListCursor string
	flagListStatus string

	flagPruneDryRun bool

	flagDeleteActor string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage backup jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup jobs for a tenant, or all jobs in a status",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagListTenant == "" && flagListStatus == "" {
			return fmt.Errorf("one of --tenant or --status is required")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var (
			jobs    []model.BackupJob
			hasMore bool
		)
		if flagListStatus != "" {
			jobs, err = a.Services.BackupJob.ListByStatus(ctx, flagListStatus)
		} else {
			jobs, hasMore, err = a.Manager.List(ctx, flagListTenant, flagListLimit, flagListCursor)
		}
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(jobs)
		}
		renderJobs(os.Stdout, jobs, time.Now())
		if hasMore && len(jobs) > 0 {
			fmt.Fprintf(os.Stderr, "more results: --cursor %s\n", jobs[len(jobs)-1].Token)
		}
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job with its record counts and audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		job, err := a.Manager.Get(ctx, args[0])
		if err != nil {
			return err
		}
		trail, err := a.Services.Audit.ListByTarget(ctx, model.AuditTargetBackupJob, job.ID)
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(map[string]any{"job": job, "audit": trail})
		}
		renderJob(os.Stdout, job, trail, time.Now())
		return nil
	},
}

var jobsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete jobs past their retention window and their archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		jobs, err := a.Manager.Prune(ctx, flagPruneDryRun)
		if flagJSON {
			if jerr := printJSON(map[string]any{"dry_run": flagPruneDryRun, "jobs": jobs}); jerr != nil {
				return jerr
			}
		} else {
			renderJobs(os.Stdout, jobs, time.Now())
			verb := "deleted"
			if flagPruneDryRun {
				verb = "would delete"
			}
			fmt.Fprintf(os.Stderr, "prune: %s %d job(s)\n", verb, len(jobs))
		}
		return err
	},
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job and its archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Manager.Delete(ctx, args[0], flagDeleteActor); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "deleted %s\n", args[0])
		return nil
	},
}

func init() {
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsPruneCmd, jobsDeleteCmd)
	jobsListCmd.Flags().StringVar(&flagListTenant, "tenant", "", "Tenant ID")
	jobsListCmd.Flags().IntVar(&flagListLimit, "limit", 50, "Max rows")
	jobsListCmd.Flags().StringVar(&flagListCursor, "cursor", "", "Token of the last job on the previous page")
	jobsListCmd.Flags().StringVar(&flagListStatus, "status", "", "List every job in this status instead")
	jobsPruneCmd.Flags().BoolVar(&flagPruneDryRun, "dry-run", false, "Only list what would be deleted")
	jobsDeleteCmd.Flags().StringVar(&flagDeleteActor, "actor", runner.SystemActor, "Actor recorded in the audit log")
}

func renderJobs(w io.Writer, jobs []model.BackupJob, now time.Time) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"ID", "TOKEN", "TENANT", "STATUS", "PROGRESS", "RECORDS", "SIZE", "CREATED_AT", "EXPIRES_AT"})
	for _, j := range jobs {
		tw.Append([]string{
			j.ID,
			j.Token,
			j.TenantID,
			j.DisplayStatus(now),
			strconv.Itoa(j.Progress) + "%",
			strconv.Itoa(totalRecords(j.RecordCounts)),
			formatSize(j.FileSize),
			j.CreatedAt.UTC().Format(time.RFC3339),
			j.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
	tw.Render()
}

func renderJob(w io.Writer, j *model.BackupJob, trail []model.AuditLog, now time.Time) {
	fmt.Fprintf(w, "ID:         %s\n", j.ID)
	fmt.Fprintf(w, "Token:      %s\n", j.Token)
	fmt.Fprintf(w, "Tenant:     %s\n", j.TenantID)
	fmt.Fprintf(w, "Created by: %s\n", j.CreatedBy)
	fmt.Fprintf(w, "Status:     %s\n", j.DisplayStatus(now))
	fmt.Fprintf(w, "Progress:   %d%%\n", j.Progress)
	if j.CurrentModule != nil {
		fmt.Fprintf(w, "Module:     %s\n", *j.CurrentModule)
	}
	if len(j.Filters.Modules) > 0 {
		fmt.Fprintf(w, "Modules:    %s\n", strings.Join(j.Filters.Modules, ", "))
	}
	if j.FilePath != nil {
		fmt.Fprintf(w, "File:       %s (%s)\n", *j.FilePath, formatSize(j.FileSize))
	}
	if j.Error != nil {
		fmt.Fprintf(w, "Error:      %s\n", *j.Error)
	}
	fmt.Fprintf(w, "Expires at: %s\n", j.ExpiresAt.UTC().Format(time.RFC3339))

	if len(j.RecordCounts) > 0 {
		fmt.Fprintln(w)
		tw := tablewriter.NewWriter(w)
		tw.SetHeader([]string{"MODULE", "RECORDS"})
		modules := make([]string, 0, len(j.RecordCounts))
		for m := range j.RecordCounts {
			modules = append(modules, m)
		}
		sort.Strings(modules)
		for _, m := range modules {
			tw.Append([]string{m, strconv.Itoa(j.RecordCounts[m])})
		}
		tw.Render()
	}

	if len(trail) > 0 {
		fmt.Fprintln(w)
		tw := tablewriter.NewWriter(w)
		tw.SetHeader([]string{"AT", "ACTION", "ACTOR"})
		for _, e := range trail {
			tw.Append([]string{e.CreatedAt.UTC().Format(time.RFC3339), e.Action, e.ActorID})
		}
		tw.Render()
	}
}

func totalRecords(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

func formatSize(size *int64) string {
	if size == nil {
		return "-"
	}
	const unit = 1024
	b := *size
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
