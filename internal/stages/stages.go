// Package stages implements the builtin input, filter and output stages.
// Each stage parses its own argument list with a flag.FlagSet, so stage
// arguments look and behave like the pump's own flags.
package stages

import (
	"flag"
	"io"

	"github.com/tsforge/tspump/internal/stage"
)

// RegisterBuiltins registers every builtin stage into the registry.
func RegisterBuiltins(r *stage.Registry) {
	r.Register(stage.TypeInput, "file", newFileInput)
	r.Register(stage.TypeInput, "random", newRandomInput)
	r.Register(stage.TypeFilter, "skip", newSkipFilter)
	r.Register(stage.TypeFilter, "count", newCountFilter)
	r.Register(stage.TypeFilter, "setlabel", newSetLabelFilter)
	r.Register(stage.TypeFilter, "bitratemon", newBitrateMonitor)
	r.Register(stage.TypeOutput, "file", newFileOutput)
	r.Register(stage.TypeOutput, "drop", newDropOutput)
}

// parseStageFlags parses args with fs, allowing flags and positional
// arguments to interleave. Returns the positional arguments in order.
func parseStageFlags(fs *flag.FlagSet, args []string) ([]string, error) {
	fs.SetOutput(io.Discard)

	var positionals []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positionals, nil
		}
		positionals = append(positionals, rest[0])
		args = rest[1:]
	}
}
