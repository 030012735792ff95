package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/gravitational/trace"
)

var cli CLI

func main() {
	parser := kong.Must(
		&cli,
		kong.UsageOnError(),
		kong.Name("mailreminder"),
		kong.Description("Reports unreplied Gmail messages to a webhook on every tick"),
	)

	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"serve"}
	}
	ctx, err := parser.Parse(args)
	parser.FatalIfErrorf(err)

	// See respective commands Run() methods
	err = ctx.Run(&cli.Globals)
	if cli.Debug && err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", trace.DebugReport(err))
	}
	ctx.FatalIfErrorf(err)
}
