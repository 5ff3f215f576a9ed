package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// JobsOptions defines the flags of the jobs command.
type JobsOptions struct {
	Action     string
	Name       string
	Arg        string
	Queue      string
	Size       int
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// JobsCommand runs one jobs action and prints the outcome. It returns the
// process exit code.
func (c *JobsCLI) JobsCommand(ctx context.Context, opts JobsOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	switch opts.Action {
	case "trigger":
		if opts.Name == "" {
			_, _ = fmt.Fprintln(opts.Stderr, "jobs trigger: task name is required")
			return 2
		}
		info, err := c.Trigger(ctx, opts.Name, opts.Arg)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		if opts.JSONOutput {
			return encode(opts, map[string]string{"id": info.ID, "type": info.Type, "queue": info.Queue})
		}
		_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "stats":
		stats, err := c.InspectQueue(ctx, opts.Queue)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		if opts.JSONOutput {
			return encode(opts, stats)
		}
		tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
		_ = tw.Flush()
		return 0
	case "scheduled":
		tasks, err := c.ListScheduled(ctx, opts.Queue, opts.Size)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs scheduled: %v\n", err)
			return 1
		}
		if opts.JSONOutput {
			type row struct {
				ID   string `json:"id"`
				Type string `json:"type"`
				At   string `json:"nextProcessAt"`
			}
			rows := make([]row, 0, len(tasks))
			for _, t := range tasks {
				rows = append(rows, row{ID: t.ID, Type: t.Type, At: t.NextProcessAt.UTC().Format("2006-01-02T15:04:05Z")})
			}
			return encode(opts, rows)
		}
		for _, t := range tasks {
			_, _ = fmt.Fprintf(opts.Stdout, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.UTC().Format("2006-01-02 15:04:05"))
		}
		return 0
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "jobs: unknown action %q (trigger|stats|scheduled)\n", opts.Action)
		return 2
	}
}

func encode(opts JobsOptions, v any) int {
	if err := json.NewEncoder(opts.Stdout).Encode(v); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "jobs: encode json: %v\n", err)
		return 1
	}
	return 0
}
