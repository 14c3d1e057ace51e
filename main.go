package main

import (
	"log"
	"os"

	"github.com/mitchellh/cli"
	"github.com/yusufsyaifudin/edumail/cmd/api"
	"github.com/yusufsyaifudin/edumail/cmd/stats"
)

func main() {
	const appName, appVersion = "edumail", "1.0.0"

	apiCmd := api.NewCmd()

	c := cli.NewCLI(appName, appVersion)
	c.Args = os.Args[1:]
	c.Autocomplete = true
	c.Commands = map[string]cli.CommandFactory{
		"":      apiCmd, // default command if no subcommand defined
		"api":   apiCmd,
		"stats": stats.NewCmd(nil),
	}

	exitStatus, err := c.Run()
	if err != nil {
		log.Println(err)
	}

	os.Exit(exitStatus)
}
