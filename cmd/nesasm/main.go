// nesasm assembles a hand-assembled listing into a flat PRG binary. Input
// lines look like:
//
//	XXXX OP A1 A2 A3 ....
//
// where XXXX is a four hex digit address field (ignored; lines are emitted
// in file order) and OP/A1.. are hex byte values, one instruction or data
// run per line. Anything not starting with four hex digits is treated as
// a comment or disassembly trailer and skipped.
package main

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var addressLine = regexp.MustCompile(`^[0-9A-Fa-f]{4} `)

var offset int

func main() {
	root := &cobra.Command{
		Use:   "nesasm <input> <output>",
		Short: "Assemble a hand-written hex listing into a flat PRG binary",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return assemble(args[0], args[1], offset)
		},
	}
	root.Flags().IntVar(&offset, "offset", 0, "byte offset to start writing at; everything before is zero filled")
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func assemble(in, out string, offset int) error {
	f, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("opening %q: %w", in, err)
	}
	defer f.Close()

	output := make([]byte, offset)
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if !addressLine.MatchString(text) {
			continue
		}
		// Strip the address field and any trailing comment/disassembly
		// columns the way a listing tool like disassemble would append.
		rest := text[5:]
		if i := strings.Index(rest, "\t"); i >= 0 {
			rest = rest[:i]
		}
		if i := strings.Index(rest, "(*"); i >= 0 {
			rest = rest[:i]
		}
		for _, tok := range strings.Fields(rest) {
			b, err := strconv.ParseUint(tok, 16, 8)
			if err != nil {
				return fmt.Errorf("line %d: invalid byte %q: %w", line, tok, err)
			}
			output = append(output, byte(b))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %q: %w", in, err)
	}

	of, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating %q: %w", out, err)
	}
	defer of.Close()
	if _, err := of.Write(output); err != nil {
		return fmt.Errorf("writing %q: %w", out, err)
	}
	return nil
}
