package stats

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mitchellh/cli"
	"github.com/segmentio/encoding/json"
	"github.com/yusufsyaifudin/edumail/container"
	"github.com/yusufsyaifudin/edumail/internal/svc/attemptsvc"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
)

const (
	ExitSuccess = 0
	ExitErr     = -1
)

type Cmd struct {
	ui         cli.Ui
	flags      *flag.FlagSet
	configFile string
}

// Report is what stats prints.
type Report struct {
	Counts attemptsvc.Counts `json:"counts"`
	Files  attemptsvc.Files  `json:"files"`
}

func NewCmd(ui cli.Ui) func() (cli.Command, error) {
	return func() (cli.Command, error) {
		cmd := &Cmd{ui: ui}
		err := cmd.init()
		return cmd, err
	}
}

var _ cli.Command = (*Cmd)(nil)

func (c *Cmd) init() error {
	if c.ui == nil {
		c.ui = &cli.BasicUi{Writer: os.Stdout, ErrorWriter: os.Stderr}
	}

	c.flags = flag.NewFlagSet("stats", flag.ContinueOnError)
	c.flags.SetOutput(os.Stderr)
	c.flags.StringVar(&c.configFile, "config", "config.yml",
		"Config file to load")
	c.flags.StringVar(&c.configFile, "c", "config.yml",
		"Alias for config file to load")
	return nil
}

func (c *Cmd) Help() string {
	return `Usage: edumail stats [-config config.yml]

  Prints the success and failure counts and the stored log files as JSON.
  Only the logs section of the config is needed.`
}

func (c *Cmd) Run(args []string) int {
	if err := c.flags.Parse(args); err != nil {
		c.ui.Error(fmt.Sprintf("error parsing argument: %s", err))
		return ExitErr
	}

	cfg, err := container.ReadConfig(c.configFile)
	if err != nil {
		c.ui.Error(fmt.Sprintf("error load config: %s", err))
		return ExitErr
	}

	if err = validator.Validate(cfg.Logs); err != nil {
		c.ui.Error(fmt.Sprintf("invalid logs config: %s", err))
		return ExitErr
	}

	attempts, err := attemptsvc.New(attemptsvc.Config{
		CSVDir:   cfg.Logs.CSVDir,
		TextDir:  cfg.Logs.TextDir,
		Location: cfg.Location(),
	})
	if err != nil {
		c.ui.Error(err.Error())
		return ExitErr
	}

	ctx := context.Background()

	var report Report
	if report.Counts, err = attempts.Counts(ctx); err != nil {
		c.ui.Error(fmt.Sprintf("error counting attempts: %s", err))
		return ExitErr
	}

	if report.Files, err = attempts.Files(ctx); err != nil {
		c.ui.Error(fmt.Sprintf("error listing files: %s", err))
		return ExitErr
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		c.ui.Error(err.Error())
		return ExitErr
	}

	c.ui.Output(string(out))
	return ExitSuccess
}

func (c *Cmd) Synopsis() string {
	return `Print attempt counts and stored log files`
}
