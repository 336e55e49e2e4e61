// Package cli implements the swipe-service command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"jobmate/swipe-service/internal/config"
	"jobmate/swipe-service/internal/logger"
)

var (
	// Version information, set during build with ldflags.
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// app is the state shared by every subcommand once the root pre-run has
// loaded configuration.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     *zap.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "swipe-service",
		Short: "Job matching feed and swipe workflow for jobmate",
		Long: `swipe-service ranks active job postings for each seeker, records
apply / pass / save decisions and drives the employer and admin workflows
around postings and applications.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["skipConfig"] == "true" {
				return nil
			}
			if err := a.bindLocalFlags(cmd); err != nil {
				return err
			}
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is swipe-service.yaml in the working directory)")
	root.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	root.PersistentFlags().BoolP("json", "j", true, "json format for logging")
	a.bindFlag(root, "log.debug", "debug")
	a.bindFlag(root, "log.json", "json")

	root.AddCommand(a.newServeCmd(), a.newSweepCmd(), a.newMigrateCmd(), newVersionCmd())
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) init() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	a.cfg, a.log = cfg, log
	return nil
}

// bindFlag binds a persistent flag immediately. Local flags are only tagged
// with their config key; several subcommands share keys, so the binding is
// made for the command that actually runs.
func (a *app) bindFlag(cmd *cobra.Command, key, flag string) {
	if f := cmd.PersistentFlags().Lookup(flag); f != nil {
		if err := a.v.BindPFlag(key, f); err != nil {
			panic(err)
		}
		return
	}
	if err := cmd.Flags().SetAnnotation(flag, configKey, []string{key}); err != nil {
		panic(err)
	}
}

const configKey = "config-key"

func (a *app) bindLocalFlags(cmd *cobra.Command) error {
	var err error
	cmd.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
		if keys := f.Annotations[configKey]; len(keys) == 1 && err == nil {
			err = a.v.BindPFlag(keys[0], f)
		}
	})
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{"skipConfig": "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "swipe-service version %s\n", Version)
			fmt.Fprintf(out, "Git commit: %s\n", GitCommit)
			fmt.Fprintf(out, "Build date: %s\n", BuildDate)
		},
	}
}
