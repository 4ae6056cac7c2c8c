// Command qpack-interop drives the QPACK codec from the command line for
// interop testing: it reads QIF or the binary interop intermediate file
// format (spec.md §6) and produces the other.
//
// Grounded on the teacher's hq/hq.go CLI conventions (a commandLine/
// commonFlags struct gathering -t/-b style flags), generalized from
// stdlib flag onto github.com/spf13/cobra + pflag, following
// yyocio-drip's cobra-based command tree.
package main

import (
	"fmt"
	"os"

	"github.com/martinthomson/qpack/cmd/qpack-interop/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
