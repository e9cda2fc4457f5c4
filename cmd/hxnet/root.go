package main

import (
	"os"

	"github.com/pthm/hxnet/lib/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// newRootCmd builds the command tree around a fresh viper instance.
func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "hxnet",
		Short: "Serve server-rendered pages built from cached components",
		Long: `hxnet serves websites whose pages are composed of cached components.

Configuration is read from flags, HXNET_ environment variables
(HXNET_SERVER_PORT, HXNET_SITE_DEBUG, ...) and .hxnet.yaml, in that order.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile == "" {
				cfgFile = os.Getenv("HXNET_CONFIG_FILE")
			}
			return config.ReadFile(v, cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .hxnet.yaml, can also use HXNET_CONFIG_FILE)")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	bind(v, "log.level", flags.Lookup("log-level"))
	bind(v, "log.format", flags.Lookup("log-format"))

	root.AddCommand(newServeCmd(v), newConfigCmd(v))
	return root
}

// bind ties a config key to a flag. It only fails for a nil flag.
func bind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
