package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/broady/bridge/cmd/bridgegen/internal/check"
	"github.com/broady/bridge/cmd/bridgegen/internal/gen"
)

type CLI struct {
	Version VersionCmd `cmd:"" help:"Print version information."`
	Gen     gen.Cmd    `cmd:"" help:"Generate TypeScript stubs for bridge services."`
	Check   check.Cmd  `cmd:"" help:"Discover services, events and models without writing files."`
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(Version())
	return nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("bridgegen"),
		kong.Description("Generate TypeScript clients for Go bridge services."),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
