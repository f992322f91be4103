// Command votcat reads a VOTable and re-emits it in a chosen table
// serialization, decompressing gzip/zstd input transparently.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	votable "github.com/brianv0/gavo-sub002"
	verrors "github.com/brianv0/gavo-sub002/errors"
)

func main() {
	os.Exit(run())
}

func run() int {
	return runWithArgs(os.Args[1:], os.Stdout, os.Stderr)
}

func runWithArgs(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("votcat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	formatName := fs.String("format", "binary", "output serialization: tabledata, binary or binary2")
	rowLimit := fs.Int("limit", 0, "stop after this many rows per table and mark overflow (0 = no limit)")
	gzipOut := fs.Bool("z", false, "gzip the output")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [options] <votable.xml[.gz|.zst]>\n\n", os.Args[0])
		fmt.Fprintln(stderr, "Re-encodes a VOTable between table serializations.")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	format, err := parseFormat(*formatName)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	src, err := votable.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer src.Close()

	dst := stdout
	var gz *gzip.Writer
	if *gzipOut {
		gz = gzip.NewWriter(stdout)
		dst = gz
	}
	if err := transcode(src, dst, format, *rowLimit); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		if verrors.CodeOf(err) != "" {
			return 3
		}
		return 1
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
	}
	return 0
}

func parseFormat(name string) (votable.WireFormat, error) {
	switch name {
	case "tabledata":
		return votable.TableData, nil
	case "binary":
		return votable.Binary, nil
	case "binary2":
		return votable.Binary2, nil
	default:
		return 0, fmt.Errorf("unknown format %q", name)
	}
}

func transcode(src io.Reader, dst io.Writer, format votable.WireFormat, rowLimit int) error {
	in, err := votable.NewReader(src)
	if err != nil {
		return err
	}
	out := votable.NewWriterWithOptions(dst, votable.WriteOptions{
		RowLimit: rowLimit,
		OverflowInfo: votable.Info{
			Name:  "QUERY_STATUS",
			Value: "OVERFLOW",
		},
	})
	if err := out.BeginResource(); err != nil {
		return err
	}
	for {
		table, rows, err := in.NextTable()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		tw, err := out.BeginTable(table.Name(), table.Schema(), format, -1)
		if err != nil {
			return err
		}
		for row, err := range rows.Rows() {
			if err != nil {
				return err
			}
			if err := tw.WriteRow(row); err != nil {
				return err
			}
			if rowLimit > 0 && tw.Rows() >= rowLimit {
				break
			}
		}
		if err := tw.Close(); err != nil {
			return err
		}
	}
	return out.Close()
}
