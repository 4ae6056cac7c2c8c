package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/martinthomson/qpack/internal/interopfile"
	"github.com/martinthomson/qpack/internal/qif"
	"github.com/martinthomson/qpack/qpack"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [interop-file]",
	Short: "Decode an interop intermediate file back into QIF text",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecode,
}

func runDecode(c *cobra.Command, args []string) error {
	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	frames, err := interopfile.ReadAll(in)
	if err != nil {
		return err
	}

	dec := qpack.NewDecoder(qpack.DecoderConfig{
		TableCapacity:     flags.tableSize,
		MaxBlockedStreams: flags.maxBlockedStreams,
	})
	dec.SetLogger(newLogger())

	var blocks []qif.Block
	for _, f := range frames {
		if f.StreamID == 0 { // encoder stream
			if err := dec.EncoderIn(f.Payload); err != nil {
				return err
			}
			continue
		}
		var fields []qpack.HeaderField
		if err := dec.DecodeHeaderBlock(f.StreamID, f.Payload, qpack.SinkToSlice(&fields)); err != nil {
			return err
		}
		block := qif.Block{}
		for _, hf := range fields {
			block.Fields = append(block.Fields, qif.Field{Name: hf.Name, Value: hf.Value})
		}
		blocks = append(blocks, block)
	}

	return qif.Write(os.Stdout, blocks)
}
