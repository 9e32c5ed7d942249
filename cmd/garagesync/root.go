package main

import (
	"github.com/spf13/cobra"

	"github.com/goliatone/go-garage-sync/pkg/config"
	"github.com/goliatone/go-garage-sync/pkg/di"
)

type rootFlags struct {
	configFile string
	envFiles   []string
	baseURL    string
	token      string
	logLevel   string
	actor      string
}

// overrides turns explicitly set flags into config overrides.
func (f *rootFlags) overrides(cmd *cobra.Command) map[string]any {
	out := map[string]any{}
	set := func(flag, key, value string) {
		if cmd.Flags().Changed(flag) {
			out[key] = value
		}
	}
	set("base-url", "remote.base_url", f.baseURL)
	set("token", "remote.token", f.token)
	set("log-level", "logging.level", f.logLevel)
	set("actor", "realtime.actor", f.actor)
	return out
}

func newRootCmd(opts ...di.Option) *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "garagesync",
		Short:         "Cached list access to the garage back office",
		SilenceUsage:  true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "config file (yaml, json or toml)")
	pf.StringSliceVar(&flags.envFiles, "env-file", nil, "dotenv files to load, default .env")
	pf.StringVar(&flags.baseURL, "base-url", "", "API base url, e.g. https://garage.example.com/api")
	pf.StringVar(&flags.token, "token", "", "bearer token")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level")
	pf.StringVar(&flags.actor, "actor", "", "id of the acting user, events caused by it are not announced")

	build := func(cmd *cobra.Command) (*di.Container, error) {
		cfg, err := config.Load(config.Options{
			File:      flags.configFile,
			EnvFiles:  flags.envFiles,
			Overrides: flags.overrides(cmd),
		})
		if err != nil {
			return nil, err
		}
		return di.NewContainer(cfg, opts...)
	}

	root.AddCommand(
		newListCmd(build),
		newWatchCmd(build),
		newResourcesCmd(),
	)
	return root
}
