package cli

import (
	"errors"
	"flag"
	"os"
	"slices"

	"github.com/cdcgov/blob-relay/internal/appconfig"
) // .import

var Flags struct {
	RunMode       string // cloud, local
	AppConfigPath string // if override
} // .flags

var runModes = []string{"", appconfig.RUN_MODE_CLOUD, appconfig.RUN_MODE_LOCAL}

var ErrUnknownRunMode = errors.New("cli flag run mode not recognized")

// ParseFlags read cli flags into the Flags struct
func ParseFlags() error {
	return parseFlags(flag.CommandLine, os.Args[1:])
} // .ParseFlags

func parseFlags(fs *flag.FlagSet, args []string) error {

	fs.StringVar(&Flags.RunMode, "env", "", "used to override the RUN_MODE setting: cloud or local")
	fs.StringVar(&Flags.AppConfigPath, "appconf", "", "path to a .env file loaded before reading the environment")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if !slices.Contains(runModes, Flags.RunMode) {
		return ErrUnknownRunMode
	} // if

	return nil
} // .parseFlags
