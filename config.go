package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind       string
	baseURL    string
	configPath string
	port       int
	profile    bool
	tlsCert    string
	tlsKey     string
	verbose    bool
	version    bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// resolvedBaseURL returns the configured base URL, defaulting to
// <scheme>://localhost:<port>. Media paths in quiz files are resolved
// against this value.
func (c *Config) resolvedBaseURL() string {
	if c.baseURL != "" {
		return strings.TrimSuffix(c.baseURL, "/")
	}
	return fmt.Sprintf("%s://localhost:%d", c.scheme(), c.port)
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("RAHOOT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "rahoot",
		Short:         "A real-time multiplayer quiz server with shareable invite codes.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: RAHOOT_BIND)")
	fs.StringVar(&cfg.baseURL, "base-url", "", "public base URL used to resolve quiz media paths (env: BASE_URL)")
	fs.StringVar(&cfg.configPath, "config-path", "./config", "directory holding game.json and quizz/ (env: CONFIG_PATH)")
	fs.IntVarP(&cfg.port, "port", "p", 3000, "port to listen on (env: PORT)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: RAHOOT_PROFILE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: RAHOOT_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: RAHOOT_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: RAHOOT_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: RAHOOT_VERSION)")

	// The original deployment configures these without a prefix.
	_ = v.BindEnv("config-path", "CONFIG_PATH", "RAHOOT_CONFIG_PATH")
	_ = v.BindEnv("port", "PORT", "RAHOOT_PORT")
	_ = v.BindEnv("base-url", "BASE_URL", "RAHOOT_BASE_URL")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("rahoot v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
