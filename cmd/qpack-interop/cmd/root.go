package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// commonFlags generalizes hq/hq.go's commonFlags struct (TableSize,
// ConcurrentDecoders) into cobra persistent flags shared by every
// subcommand.
type commonFlags struct {
	tableSize         int
	maxBlockedStreams int
	maxRiskedStreams  int
	concurrency       int
	verbose           bool
}

var flags commonFlags

var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "qpack-interop",
	Short: "Encode/decode QPACK header blocks for interop testing",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.IntVar(&flags.tableSize, "table-size", 4096, "dynamic table capacity in bytes")
	pf.IntVar(&flags.maxBlockedStreams, "max-blocked-streams", 100, "maximum number of streams the decoder may block")
	pf.IntVar(&flags.maxRiskedStreams, "max-risked-streams", 100, "maximum number of streams the encoder may risk blocking")
	pf.IntVar(&flags.concurrency, "concurrency", 1, "number of QIF files to encode concurrently in batch mode")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(encodeCmd, decodeCmd)
}

func newLogger() *zap.Logger {
	if !flags.verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}
