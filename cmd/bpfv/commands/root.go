// Package commands provides the CLI commands for bpfv.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/bpf-verify/internal/config"
	"github.com/l3aro/bpf-verify/internal/log"
	"github.com/l3aro/bpf-verify/pkg/program"
)

var (
	configPath string
	verbose    bool

	appConfig *config.Config
	logger    log.Logger = log.Nop()
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "bpfv",
	Short: "bpf-verify - Static verification of eBPF-like programs",
	Long: `bpf-verify abstractly interprets programs written in a small eBPF-like
assembler and reports what holds at their exit.

Commands:
  verify      Verify programs and check their expectations
  cfg         Print the control-flow graph of a program
  stats       Print CFG statistics as CSV
  init        Create a configuration file interactively

Use "bpfv [command] --help" for more information about a command.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == initCmd.Name() {
			return nil
		}
		return setup(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if l, ok := logger.(*log.DefaultLogger); ok {
			_ = l.Sync()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

// setup loads the configuration and builds the logger every command uses.
func setup(cmd *cobra.Command) error {
	var err error
	if configPath != "" {
		appConfig, err = config.LoadFromFile(configPath)
	} else {
		appConfig, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := appConfig.Level()
	if verbose {
		level = log.DebugLevel
	}
	logger = log.New(log.LoggerConfig{
		Level:      level,
		JSONOutput: appConfig.JSONLog,
		Output:     cmd.ErrOrStderr(),
	})
	return nil
}

// loadPrograms reads every program in paths, keeping file order.
func loadPrograms(paths []string) ([]program.Program, error) {
	var progs []program.Program
	for _, path := range paths {
		p, err := program.Load(path)
		if err != nil {
			return nil, err
		}
		progs = append(progs, p...)
	}
	return progs, nil
}

// selectProgram picks the program called name, or the first one.
func selectProgram(progs []program.Program, name string) (*program.Program, error) {
	if len(progs) == 0 {
		return nil, fmt.Errorf("no programs found")
	}
	if name == "" {
		return &progs[0], nil
	}
	for i := range progs {
		if progs[i].Name == name {
			return &progs[i], nil
		}
	}
	return nil, fmt.Errorf("program %q not found", name)
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: ~/.bpfv and ./.bpfv)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
}
