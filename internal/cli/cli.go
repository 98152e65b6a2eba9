package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Parse    *ParseCommand
	Classify *ClassifyCommand
	Timeline *TimelineCommand
	ImportKB *ImportKBCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "cookietrail"
	parser.LongDescription = "Offline tools for the cookie trail recorder: parse and classify Set-Cookie headers, render saved sessions, import reference databases."

	cmds := &commands{
		Parse:    &ParseCommand{globals: &globals, version: version},
		Classify: &ClassifyCommand{globals: &globals, version: version},
		Timeline: &TimelineCommand{globals: &globals, version: version},
		ImportKB: &ImportKBCommand{globals: &globals, version: version},
	}

	parser.AddCommand("parse", "Parse Set-Cookie headers", "Parse Set-Cookie header values into canonical cookie identities.", cmds.Parse)
	parser.AddCommand("classify", "Classify Set-Cookie headers", "Parse Set-Cookie header values and classify them against a reference cookie database.", cmds.Classify)
	parser.AddCommand("timeline", "Render a saved session", "Render a saved session snapshot as a condensed timeline.", cmds.Timeline)
	parser.AddCommand("import-kb", "Import a reference database into Postgres", "Load a reference cookie database and replace the contents of a Postgres reference table with it.", cmds.ImportKB)

	return parser, &globals, cmds
}

// Run is the main entry point for the cookietrail CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("cookietrail %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
