package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent render jobs",
	Long: `List render jobs recorded in the history database, newest first.

Examples:
  capsync jobs
  capsync jobs --limit 5 --json`,
	Args: cobra.NoArgs,
	RunE: runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)

	jobsCmd.Flags().Int("limit", 20, "Maximum number of jobs to show")
	jobsCmd.Flags().Bool("json", false, "Print jobs as JSON")
}

func runJobs(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	db := openJobs()
	if db == nil {
		return fmt.Errorf("job history is unavailable (storage.database = %q)", cfg.Storage.Database)
	}
	defer db.Close()

	records, err := db.List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No render jobs recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATUS\tSTYLE\tFRAMES\tCREATED\tOUTPUT")
	for _, r := range records {
		output := r.Output
		if r.Error != "" {
			output = r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.JobID[:min(8, len(r.JobID))], r.Status, r.Style, r.Frames,
			r.CreatedAt.Local().Format(time.DateTime), output)
	}
	return tw.Flush()
}
