package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/martinthomson/qpack/internal/interopfile"
	"github.com/martinthomson/qpack/internal/qif"
	"github.com/martinthomson/qpack/qpack"
)

var encodeCmd = &cobra.Command{
	Use:   "encode [qif-file]...",
	Short: "Encode one or more QIF files into the interop intermediate format",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEncode,
}

// encodeOne runs a single QIF file's blocks through a fresh Encoder (each
// file gets its own codec instance and its own simulated stream-id space,
// matching spec.md §5: the codec itself is always single-threaded, but
// independent instances may run in parallel).
func encodeOne(path string) ([]interopfile.Frame, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	blocks, err := qif.Read(in)
	if err != nil {
		return nil, err
	}

	enc := qpack.NewEncoder(qpack.EncoderConfig{
		TableCapacity:     flags.tableSize,
		MaxBlockedStreams: flags.maxBlockedStreams,
		MaxRiskedStreams:  flags.maxRiskedStreams,
		HistoryDepth:      16,
	})
	enc.SetLogger(newLogger())

	var frames []interopfile.Frame
	for i, b := range blocks {
		streamID := uint64(i + 1) // stream 0 is the encoder stream
		if err := enc.StartHeader(streamID); err != nil {
			return nil, err
		}
		for _, f := range b.Fields {
			if err := enc.Encode(f.Name, f.Value, 0); err != nil {
				return nil, err
			}
		}
		block, _, err := enc.EndHeader()
		if err != nil {
			return nil, err
		}
		if insertBytes := enc.EncoderStreamOut(); insertBytes != nil {
			frames = append(frames, interopfile.Frame{StreamID: 0, Payload: insertBytes})
		}
		frames = append(frames, interopfile.Frame{StreamID: streamID, Payload: block})
	}
	return frames, nil
}

func runEncode(c *cobra.Command, args []string) error {
	results := make([][]interopfile.Frame, len(args))

	g := new(errgroup.Group)
	g.SetLimit(flags.concurrency)
	for i, path := range args {
		i, path := i, path
		g.Go(func() error {
			frames, err := encodeOne(path)
			if err != nil {
				return err
			}
			results[i] = frames
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, frames := range results {
		for _, f := range frames {
			if err := interopfile.WriteFrame(os.Stdout, f); err != nil {
				return err
			}
		}
	}
	return nil
}
