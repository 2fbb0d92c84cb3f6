package commands

import (
	"encoding/csv"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/l3aro/bpf-verify/pkg/cfg"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats <file>...",
	Short: "Print CFG statistics as CSV",
	Long: `Prints one CSV row per program with the block, join and branch counts of
its analysis-ready graph and a count of every instruction kind.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		progs, err := loadPrograms(args)
		if err != nil {
			return err
		}

		w := csv.NewWriter(cmd.OutOrStdout())
		if err := w.Write(append([]string{"name"}, cfg.StatsHeaders...)); err != nil {
			return err
		}
		for i := range progs {
			g, err := buildGraph(&progs[i], true)
			if err != nil {
				return err
			}
			stats := cfg.CollectStats(g)
			row := []string{progs[i].Name}
			for _, h := range cfg.StatsHeaders {
				row = append(row, strconv.Itoa(stats[h]))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	},
}

func init() {
	RootCmd.AddCommand(statsCmd)
}
