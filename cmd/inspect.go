package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/babevm/babevm-sub001/internal/dashboard"
	"github.com/babevm/babevm-sub001/internal/vm"
	"github.com/babevm/babevm-sub001/utils"
)

var (
	inspectHeapSize      string
	inspectBootClasspath string
	inspectClasspath     string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <main-class> [args...]",
	Short: "Run a class under the live thread/heap/GC dashboard",
	Args:  cobra.MinimumNArgs(1),
	ValidArgsFunction: utils.CompleteFilesByExtension([]string{".class", ".jar"}, false),
	RunE: func(cmd *cobra.Command, args []string) error {
		heapSize, err := utils.ParseMemorySize(inspectHeapSize)
		if err != nil {
			return fmt.Errorf("invalid --heap value %q: %w", inspectHeapSize, err)
		}

		cfg := vm.Config{
			HeapSize:           uint32(heapSize),
			BootstrapClasspath: splitClasspath(inspectBootClasspath),
			UserClasspath:      splitClasspath(inspectClasspath),
			Quiet:              true, // the dashboard owns the terminal
		}

		machine, err := vm.New(cfg)
		if err != nil {
			return fmt.Errorf("starting VM: %w", err)
		}

		// machine.Run drives the interpreter loop on its own goroutine while
		// the dashboard polls VM state from another, the same
		// best-effort/eventually-consistent view a JMX poller has of a live
		// JVM (internal/dashboard never mutates anything it reads). errgroup
		// fans the two in and waits for both, so a crash in either one
		// doesn't strand the other still running in the background.
		var g errgroup.Group
		g.Go(func() error { return machine.Run(args[0], args[1:]) })
		g.Go(func() error { return dashboard.Attach(machine) })
		return g.Wait()
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectHeapSize, "heap", "16M", "heap size, e.g. 16M, 512K, 1G")
	inspectCmd.Flags().StringVar(&inspectBootClasspath, "bootclasspath", "", "bootstrap classpath")
	inspectCmd.Flags().StringVarP(&inspectClasspath, "classpath", "c", "", "user classpath")
	rootCmd.AddCommand(inspectCmd)
}
