package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/babevm/babevm-sub001/internal/vm"
	"github.com/babevm/babevm-sub001/utils"
)

var (
	runHeapSize      string
	runBootClasspath string
	runClasspath     string
	runQuantum       int
	runDebug         bool
	runQuiet         bool
)

var runCmd = &cobra.Command{
	Use:   "run <main-class> [args...]",
	Short: "Run a class file's public static void main(String[])",
	Args:  cobra.MinimumNArgs(1),
	ValidArgsFunction: utils.CompleteFilesByExtension([]string{".class", ".jar"}, false),
	RunE: func(cmd *cobra.Command, args []string) error {
		heapSize, err := utils.ParseMemorySize(runHeapSize)
		if err != nil {
			return fmt.Errorf("invalid --heap value %q: %w", runHeapSize, err)
		}

		cfg := vm.Config{
			HeapSize:           uint32(heapSize),
			BootstrapClasspath: splitClasspath(runBootClasspath),
			UserClasspath:      splitClasspath(runClasspath),
			Quantum:            runQuantum,
			Debugger:           runDebug,
			Quiet:              runQuiet,
		}

		machine, err := vm.New(cfg)
		if err != nil {
			return fmt.Errorf("starting VM: %w", err)
		}

		mainClass := args[0]
		return machine.Run(mainClass, args[1:])
	},
}

// splitClasspath follows spec.md §7's path-separator convention: entries
// separated by the host's classpath separator, with empty entries kept as
// interior nulls (meaningful to a user classpath, harmless as a terminator
// to a bootstrap one).
func splitClasspath(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, string(os.PathListSeparator))
}

func init() {
	sep := string(os.PathListSeparator)
	runCmd.Flags().StringVar(&runHeapSize, "heap", "16M", "heap size, e.g. 16M, 512K, 1G")
	runCmd.Flags().StringVar(&runBootClasspath, "bootclasspath", "", "bootstrap classpath, separated by "+sep)
	runCmd.Flags().StringVarP(&runClasspath, "classpath", "c", "", "user classpath, separated by "+sep)
	runCmd.Flags().IntVar(&runQuantum, "quantum", 10000, "bytecode-dispatch steps per thread timeslice")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "set the interpreter's Debugger flag (no code reads it)")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "suppress informational VM logging")
	rootCmd.AddCommand(runCmd)
}
