package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/mist-hpc/mist/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type GlobalOptions struct {
	ConfigFilePath string

	out io.Writer
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ConfigFilePath: client.DefaultConfigPath(),
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ConfigFilePath, "config", "c", o.ConfigFilePath, "Path to the client configuration file.")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	o.out = cmd.OutOrStdout()
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	return nil
}

// Client builds a gateway client from the configuration file written by login.
func (o *GlobalOptions) Client() (*client.GatewayClient, error) {
	cfg, err := client.ParseConfigFile(o.ConfigFilePath)
	if err != nil {
		return nil, fmt.Errorf("%w (run 'mist login' first)", err)
	}
	if cfg.Credential.Expired(time.Now()) {
		return nil, fmt.Errorf("credential expired at %s, run 'mist login' again", cfg.Credential.ExpiresAt.Format(time.RFC3339))
	}
	return client.NewFromConfig(cfg), nil
}
