package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type WhoAmIOptions struct {
	GlobalOptions
}

func NewCmdWhoAmI() *cobra.Command {
	o := &WhoAmIOptions{GlobalOptions: DefaultGlobalOptions()}
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Print the identity of the saved credential.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *WhoAmIOptions) Run(ctx context.Context) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	identity, err := c.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("reading identity: %w", err)
	}

	fmt.Fprintf(o.out, "%s/%s", identity.Organization, identity.Username)
	if identity.Admin {
		fmt.Fprint(o.out, " (admin)")
	}
	fmt.Fprintln(o.out)
	return nil
}
