package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	api "github.com/mist-hpc/mist/api/v1alpha1"
	"github.com/mist-hpc/mist/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"
)

const (
	jsonFormat = "json"
	yamlFormat = "yaml"

	maxResultWidth = 40
)

var (
	legalOutputTypes = []string{jsonFormat, yamlFormat}
	legalStates      = []string{
		string(api.JobStatePending),
		string(api.JobStateRunning),
		string(api.JobStateSucceeded),
		string(api.JobStateFailed),
		string(api.JobStateCancelled),
	}
)

type GetOptions struct {
	GlobalOptions

	Output string
	States []string
	All    bool
	Limit  int
}

func DefaultGetOptions() *GetOptions {
	return &GetOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdGet() *cobra.Command {
	o := DefaultGetOptions()
	cmd := &cobra.Command{
		Use:   "get (TYPE | TYPE/ID)",
		Short: "Display one or many jobs, or the dispatcher status.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *GetOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
	fs.StringSliceVarP(&o.States, "state", "s", o.States, "Only list jobs in these states.")
	fs.BoolVarP(&o.All, "all", "A", o.All, "List the jobs of every user (admins only).")
	fs.IntVar(&o.Limit, "limit", o.Limit, "Maximum number of jobs to list.")
}

func (o *GetOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	kind, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}

	if kind == DispatcherKind && (id != nil || len(o.States) > 0 || o.All || o.Limit > 0) {
		return fmt.Errorf("the dispatcher takes no ID and no filters")
	}

	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}

	if id != nil && (len(o.States) > 0 || o.All || o.Limit > 0) {
		return fmt.Errorf("--state, --all and --limit only apply to listings")
	}
	for _, s := range o.States {
		if !funk.ContainsString(legalStates, s) {
			return fmt.Errorf("state must be one of %s", strings.Join(legalStates, ", "))
		}
	}
	if o.Limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}

	return nil
}

func (o *GetOptions) Run(ctx context.Context, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	kind, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}

	if kind == DispatcherKind {
		status, err := c.DispatcherStatus(ctx)
		if err != nil {
			return fmt.Errorf("reading %s status: %w", kind, err)
		}
		return o.printStatus(status)
	}

	if id != nil {
		job, err := c.GetJob(ctx, *id)
		if err != nil {
			return fmt.Errorf("reading %s/%s: %w", kind, id, err)
		}
		return o.print(job, api.JobList{*job})
	}

	jobs, err := c.ListJobs(ctx, client.ListJobsParams{States: o.States, All: o.All, Limit: o.Limit})
	if err != nil {
		return fmt.Errorf("listing %s: %w", plural(kind), err)
	}
	return o.print(jobs, jobs)
}

func (o *GetOptions) print(resource any, jobs api.JobList) error {
	switch o.Output {
	case jsonFormat:
		marshalled, err := json.Marshal(resource)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		fmt.Fprintf(o.out, "%s\n", string(marshalled))
		return nil
	case yamlFormat:
		marshalled, err := yaml.Marshal(resource)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		fmt.Fprintf(o.out, "%s\n", string(marshalled))
		return nil
	default:
		printJobsTable(o.out, jobs...)
		return nil
	}
}

func (o *GetOptions) printStatus(status *api.DispatcherStatus) error {
	if o.Output != "" {
		return o.print(status, nil)
	}

	w := tabwriter.NewWriter(o.out, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "POOL\tRUNNING\tFREE\tJOBS")
	jobs := make([]string, 0, len(status.Jobs))
	for _, id := range status.Jobs {
		jobs = append(jobs, id.String())
	}
	fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", status.PoolSize, status.Running, status.Free, strings.Join(jobs, ","))
	return w.Flush()
}

func printJobsTable(out io.Writer, jobs ...api.Job) {
	w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "ID\tOWNER\tSTATE\tAGE\tRESULT")
	for _, j := range jobs {
		result := ""
		if j.Result != nil {
			result = truncate(*j.Result, maxResultWidth)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", j.Id, j.Owner, j.State, time.Since(j.CreatedAt).Round(time.Second), result)
	}
	w.Flush()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
