// Command croc is a small console driver around the croc execution
// core: given a compiled module file it loads the module into a fresh VM
// and runs its top-level function, returning an escaping exception as
// the command's error (with no file it only prints a usage note).
// --verbose selects development logging and --gc-stats prints heap
// counters afterwards; the gc-demo subcommand reports heap stats around
// a full collection.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"croc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	var gcStats bool

	root := &cobra.Command{
		Use:   "croc [module]",
		Short: "run a compiled croc module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var log *zap.Logger
			if verbose {
				log = croc.NewDevelopmentLogger()
			} else {
				log = croc.NewProductionLogger()
			}
			defer log.Sync()

			vm := croc.NewVM(croc.Options{Logger: log})

			if len(args) == 1 {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				mod, err := vm.LoadModule(data)
				if err != nil {
					return err
				}
				fn := vm.NewScriptFunction(mod.Top, nil, nil)
				_, exc := vm.CallFunction(vm.MainThread(), croc.FunctionValue(fn), nil, 0)
				if exc != nil {
					return exc
				}
				if err := vm.FatalError(); err != nil {
					return err
				}
			} else {
				cmd.Println("croc: no module given; pass a path to a compiled .croc module file")
			}

			if gcStats {
				stats := vm.HeapStats()
				cmd.Printf("heap: %d bytes allocated, %d allocations, %d frees\n",
					stats.BytesAllocated, stats.AllocCount, stats.FreeCount)
			}
			return nil
		},
	}

	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable development-mode (human-readable) logging")
	root.Flags().BoolVar(&gcStats, "gc-stats", false, "print heap/GC statistics after running")
	root.AddCommand(newCollectCmd())
	return root
}

func newCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc-demo",
		Short: "allocate some garbage and run a full collection, reporting before/after stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := croc.NewDevelopmentLogger()
			defer log.Sync()
			vm := croc.NewVM(croc.Options{Logger: log})

			for i := 0; i < 10000; i++ {
				vm.NewTable()
			}
			before := vm.HeapStats()
			if err := vm.Collect(); err != nil {
				return err
			}
			after := vm.HeapStats()
			cmd.Printf("before: %+v\nafter:  %+v\n", before, after)
			return nil
		},
	}
}
