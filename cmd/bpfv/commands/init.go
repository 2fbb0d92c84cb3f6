package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/bpf-verify/internal/config"
	"github.com/l3aro/bpf-verify/pkg/partition"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file interactively",
	Long: `Guides you through setting up bpfv configuration step by step and saves
it either globally (~/.bpfv/config.yaml) or for the current project
(./.bpfv/config.yaml).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd)
	},
}

func runInit(cmd *cobra.Command) error {
	cfg := config.DefaultConfig()

	// === SECTION 1: Analysis ===
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Simplify control-flow graphs?").
				Description("Merges straight-line chains into single blocks before the analysis").
				Value(&cfg.Simplify),
			huh.NewConfirm().
				Title("Require an explicit exit?").
				Description("Rejects programs that fall off their last instruction").
				Value(&cfg.MustHaveExit),
			huh.NewConfirm().
				Title("Check termination?").
				Description("Bounds the iterations of every loop").
				Value(&cfg.CheckTermination),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Partitioning ===
	keys := ""
	maxPartitions := strconv.Itoa(cfg.MaxPartitions)
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Partition keys (optional, press Enter to skip)").
				Description("Comma-separated variables the state is split on, e.g. packet_size").
				Placeholder("packet_size").
				Value(&keys),
			huh.NewInput().
				Title("Maximum partitions per program point (0 = unbounded)").
				Value(&maxPartitions).
				Validate(nonNegativeInt),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	if list := splitKeys(keys); len(list) > 0 {
		cfg.PartitionKeys = map[string][]string{partition.Wildcard: list}
	}
	cfg.MaxPartitions, _ = strconv.Atoi(strings.TrimSpace(maxPartitions))

	// === SECTION 3: Save Location ===
	var scope string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should the configuration be saved?").
				Options(
					huh.NewOption("Global (~/.bpfv/config.yaml)", "global"),
					huh.NewOption("Project (./.bpfv/config.yaml)", "project"),
				).
				Value(&scope),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	path := config.GlobalConfigFilePath()
	if scope == "project" {
		path = config.ProjectConfigFilePath()
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\n=== Configuration Preview ===")
	fmt.Fprintf(out, "Config path: %s\n", path)
	fmt.Fprintf(out, "Simplify: %t\n", cfg.Simplify)
	fmt.Fprintf(out, "Must have exit: %t\n", cfg.MustHaveExit)
	fmt.Fprintf(out, "Check termination: %t\n", cfg.CheckTermination)
	if len(cfg.PartitionKeys) > 0 {
		fmt.Fprintf(out, "Partition keys: %s\n", strings.Join(cfg.PartitionKeys[partition.Wildcard], ", "))
	} else {
		fmt.Fprintln(out, "Partition keys: none")
	}
	fmt.Fprintf(out, "Max partitions: %d\n", cfg.MaxPartitions)
	fmt.Fprintln(out, "================================")

	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(out, "Configuration saved to: %s\n", path)
	return nil
}

func nonNegativeInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("enter a non-negative number")
	}
	return nil
}

func splitKeys(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func init() {
	RootCmd.AddCommand(initCmd)
}
