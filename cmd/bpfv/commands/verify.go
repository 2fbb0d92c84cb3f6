package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/bpf-verify/pkg/cache"
	"github.com/l3aro/bpf-verify/pkg/partition"
	"github.com/l3aro/bpf-verify/pkg/program"
	"github.com/l3aro/bpf-verify/pkg/verifier"
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <file>...",
	Short: "Verify programs and check their expectations",
	Long: `Verifies every program in the given YAML files. Each program is analysed
with the interval domain, partitioned when partition keys are configured, and
the result is compared with the program's expectations.

Exits with an error if any expectation does not hold.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := appConfig.VerifierOptions()
		flags := cmd.Flags()
		if v, _ := flags.GetBool("termination"); v {
			opts.CheckTermination = true
		}
		if v, _ := flags.GetBool("strict"); v {
			opts.MustHaveExit = true
		}
		if v, _ := flags.GetBool("no-simplify"); v {
			opts.Simplify = false
		}
		if keys, _ := flags.GetStringSlice("partition-key"); len(keys) > 0 {
			opts.PartitionKeys = partition.KeyMap{partition.Wildcard: keys}
		}
		useCache, _ := flags.GetBool("cache")
		jsonOutput, _ := flags.GetBool("json")

		progs, err := loadPrograms(args)
		if err != nil {
			return err
		}
		return runVerify(cmd, progs, opts, useCache, jsonOutput)
	},
}

func runVerify(cmd *cobra.Command, progs []program.Program, opts verifier.Options, useCache, jsonOutput bool) error {
	var reports *cache.Cache
	if useCache {
		reports = cache.New(cache.Options{MaxSize: appConfig.CacheSize})
		if err := cache.LoadFromFile(reports, appConfig.CachePath); err != nil {
			logger.Warn("ignoring unreadable report cache", "path", appConfig.CachePath, "error", err)
		}
	}

	// Only programs without a cached report are analysed.
	results := make([]*verifier.Report, len(progs))
	cached := make([]bool, len(progs))
	keys := make([]string, len(progs))
	var pending []program.Program
	var pendingIdx []int
	for i := range progs {
		if reports != nil {
			key, err := cache.Key(&progs[i], opts)
			if err != nil {
				return err
			}
			keys[i] = key
			if r, ok := reports.Get(key); ok {
				results[i], cached[i] = r, true
				continue
			}
		}
		pending = append(pending, progs[i])
		pendingIdx = append(pendingIdx, i)
	}

	fresh, err := verifier.VerifyAll(cmd.Context(), pending, opts, appConfig.Parallelism, logger)
	if err != nil {
		return err
	}
	for j, r := range fresh {
		i := pendingIdx[j]
		results[i] = r
		if reports != nil {
			reports.Set(keys[i], r)
		}
	}

	if reports != nil {
		if err := cache.PersistToFile(reports, appConfig.CachePath); err != nil {
			logger.Warn("failed to persist report cache", "path", appConfig.CachePath, "error", err)
		}
		stats := reports.Stats()
		logger.Debug("report cache", "entries", stats.Length, "hits", stats.HitCount, "misses", stats.MissCount)
	}

	out := cmd.OutOrStdout()
	failed := 0
	for i, r := range results {
		if !r.Passed() {
			failed++
		}
		if !jsonOutput {
			printReport(out, r, cached[i])
		}
	}
	if jsonOutput {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d programs failed", failed, len(results))
	}
	return nil
}

func init() {
	verifyCmd.Flags().Bool("termination", false, "Check that every loop is bounded")
	verifyCmd.Flags().Bool("strict", false, "Reject programs that fall off their last instruction")
	verifyCmd.Flags().Bool("no-simplify", false, "Keep one block per instruction")
	verifyCmd.Flags().StringSlice("partition-key", nil, "Partition the analysis on these variables")
	verifyCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	verifyCmd.Flags().Bool("cache", false, "Reuse reports cached on disk")
	RootCmd.AddCommand(verifyCmd)
}
