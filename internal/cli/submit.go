package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	api "github.com/mist-hpc/mist/api/v1alpha1"
	"github.com/mist-hpc/mist/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
)

var terminalStates = []api.JobState{api.JobStateSucceeded, api.JobStateFailed, api.JobStateCancelled}

type SubmitOptions struct {
	GlobalOptions

	Wait         bool
	PollInterval time.Duration
}

func DefaultSubmitOptions() *SubmitOptions {
	return &SubmitOptions{
		GlobalOptions: DefaultGlobalOptions(),
		PollInterval:  time.Second,
	}
}

func NewCmdSubmit() *cobra.Command {
	o := DefaultSubmitOptions()
	cmd := &cobra.Command{
		Use:   "submit PAYLOAD",
		Short: "Submit a job, for example 'echo:hello' or 'sleep:2s'.",
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

func (o *SubmitOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.BoolVarP(&o.Wait, "wait", "w", o.Wait, "Wait for the job to finish and print its result.")
	fs.DurationVar(&o.PollInterval, "poll-interval", o.PollInterval, "Interval between two job reads while waiting.")
}

func (o *SubmitOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if len(args[0]) == 0 {
		return errors.New("payload is empty")
	}
	if o.PollInterval <= 0 {
		return errors.New("--poll-interval must be positive")
	}
	return nil
}

func (o *SubmitOptions) Run(ctx context.Context, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	created, err := c.SubmitJob(ctx, args[0])
	if err != nil {
		return fmt.Errorf("submitting job: %w", err)
	}

	if !o.Wait {
		fmt.Fprintf(o.out, "%s\n", created.Id)
		return nil
	}

	job, err := waitForJob(ctx, c, created.Id, o.PollInterval)
	if err != nil {
		return err
	}

	fmt.Fprintf(o.out, "%s %s\n", job.Id, job.State)
	if job.Result != nil {
		fmt.Fprintf(o.out, "%s\n", *job.Result)
	}
	if job.State != api.JobStateSucceeded {
		return fmt.Errorf("job %s ended %s", job.Id, job.State)
	}
	return nil
}

func waitForJob(ctx context.Context, c *client.GatewayClient, id uuid.UUID, interval time.Duration) (*api.Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reading job/%s: %w", id, err)
		}
		if funk.Contains(terminalStates, job.State) {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
