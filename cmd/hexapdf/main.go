// Command hexapdf inspects and rewrites the object layer of PDF files.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/juju/errgo"

	"github.com/djberg96/hexapdf/file"
	"github.com/djberg96/hexapdf/pdf"
)

const version = "0.1.0"

// CLI defines the command-line interface for hexapdf.
var CLI struct {
	Verbose bool `short:"v" help:"Enable debug logging"`

	Info    InfoCmd    `cmd:"" help:"Show revisions, trailer, and cross-reference summary"`
	Cat     CatCmd     `cmd:"" help:"Print an object from the file"`
	Rewrite RewriteCmd `cmd:"" help:"Rewrite a document into a fresh single-section file"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// InfoCmd shows the revision structure of a file.
type InfoCmd struct {
	Path string `arg:"" help:"Path to PDF file" type:"existingfile"`
}

func (c *InfoCmd) Run(logger *slog.Logger) error {
	doc, err := file.Open(c.Path)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	defer doc.Close()

	revisions := doc.Revisions()
	logger.Debug("opened", "path", c.Path, "revisions", len(revisions))

	fmt.Printf("File: %s\n", c.Path)
	fmt.Printf("Revisions: %d (including the working revision)\n", len(revisions))
	if doc.Root.ObjectNumber != 0 {
		fmt.Printf("Root: %d %d R\n", doc.Root.ObjectNumber, doc.Root.GenerationNumber)
	}
	fmt.Println()

	// skip the working revision; it mirrors the newest saved one
	for i := len(revisions) - 1; i >= 1; i-- {
		rev := revisions[i]
		number := len(revisions) - i

		free, inUse, compressed := 0, 0, 0
		index := rev.Index()
		for _, id := range index.IDs() {
			entry, _ := index.Lookup(id)
			switch entry.Kind {
			case file.FreeEntry:
				free++
			case file.InUseEntry:
				inUse++
			case file.CompressedEntry:
				compressed++
			}
		}

		fmt.Printf("Revision %d:\n", number)
		fmt.Printf("  Entries: %d in use, %d compressed, %d free\n", inUse, compressed, free)
		if prev, ok := rev.Trailer["Prev"].(pdf.Integer); ok {
			fmt.Printf("  Prev: %d\n", prev)
		}
		if size, ok := rev.Trailer["Size"].(pdf.Integer); ok {
			fmt.Printf("  Size: %d\n", size)
		}
		fmt.Println()
	}

	return nil
}

// CatCmd prints a decoded object.
type CatCmd struct {
	Path       string `arg:"" help:"Path to PDF file" type:"existingfile"`
	Number     uint   `arg:"" help:"Object number"`
	Generation uint   `help:"Generation number" default:"0"`
	Raw        bool   `help:"For streams, print the raw (still encoded) data"`
}

func (c *CatCmd) Run(logger *slog.Logger) error {
	doc, err := file.Open(c.Path)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	defer doc.Close()

	ref := pdf.ObjectReference{ObjectNumber: c.Number, GenerationNumber: c.Generation}
	obj := doc.Get(ref)
	if null, isNull := obj.(pdf.Null); isNull && null.Error != nil {
		return errgo.Mask(null.Error, errgo.Any)
	}

	if stream, isStream := obj.(pdf.Stream); isStream && !c.Raw {
		encoded, err := pdf.EncodeValue(stream.Dictionary)
		if err != nil {
			return errgo.Mask(err, errgo.Any)
		}
		os.Stdout.Write(encoded)
		fmt.Println()

		decoded, err := stream.Decode()
		if err != nil {
			logger.Warn("could not decode stream, printing raw data",
				"object", c.Number, "error", err)
			decoded = stream.Stream
		}
		os.Stdout.Write(decoded)
		fmt.Println()
		return nil
	}

	encoded, err := pdf.EncodeValue(obj)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	os.Stdout.Write(encoded)
	fmt.Println()
	return nil
}

// RewriteCmd loads a document and writes it out again. The output has
// the original bytes followed by one fresh update section, which
// repairs a broken index as long as the objects themselves parse.
type RewriteCmd struct {
	In          string `arg:"" help:"Path to input PDF file" type:"existingfile"`
	Out         string `arg:"" help:"Path to output file" type:"path"`
	XrefStreams bool   `help:"Write the index as a cross-reference stream"`
}

func (c *RewriteCmd) Run(logger *slog.Logger) error {
	doc, err := file.Open(c.In)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	defer doc.Close()

	doc.UseXrefStreams = c.XrefStreams

	out, err := os.Create(c.Out)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	defer out.Close()

	written, err := doc.WriteTo(out)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	logger.Debug("rewrote", "in", c.In, "out", c.Out, "bytes", written)

	fmt.Printf("Wrote %s (%d bytes)\n", c.Out, written)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(logger *slog.Logger) error {
	fmt.Printf("hexapdf %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("hexapdf"),
		kong.Description("Object-level PDF file inspector and rewriter"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	level := slog.LevelInfo
	if CLI.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	err := ctx.Run(logger)
	if err != nil {
		logger.Error("fatal", "details", errgo.Details(err))
	}
	ctx.FatalIfErrorf(err)
}
