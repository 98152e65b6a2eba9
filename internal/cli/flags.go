package cli

import (
	"io"

	"github.com/spf13/afero"
)

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Scoring string `long:"scoring" description:"Path to a YAML file overriding classifier weights"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// ParseCommand prints canonical identities for raw Set-Cookie values.
type ParseCommand struct {
	Headers []string `long:"header" short:"H" description:"Raw Set-Cookie value (repeatable)" required:"true"`

	globals *GlobalFlags
	version string
	out     io.Writer
}

// ClassifyCommand classifies raw Set-Cookie values against a reference database.
type ClassifyCommand struct {
	Headers        []string `long:"header" short:"H" description:"Raw Set-Cookie value (repeatable)" required:"true"`
	KnowledgeBase  string   `long:"kb" description:"Reference database locator: file path, http(s) URL, s3://bucket/key or postgres URL" default:"assets/open-cookie-database.json"`
	Table          string   `long:"table" description:"Reference table when --kb is a postgres URL" default:"cookie_reference_entries"`
	TimeoutSeconds int      `long:"timeout" description:"Seconds allowed for loading the reference database" default:"30"`

	globals *GlobalFlags
	version string
	out     io.Writer
	fs      afero.Fs
}

// TimelineCommand renders a session snapshot file.
type TimelineCommand struct {
	File string `long:"file" short:"f" description:"Session snapshot JSON file (required)" required:"true"`

	globals *GlobalFlags
	version string
	out     io.Writer
	fs      afero.Fs
}

// ImportKBCommand copies a reference database into a Postgres table.
type ImportKBCommand struct {
	From           string `long:"from" description:"Reference database locator to read (required)" required:"true"`
	To             string `long:"to" description:"Postgres URL to write into (required)" required:"true"`
	Table          string `long:"table" description:"Destination reference table" default:"cookie_reference_entries"`
	TimeoutSeconds int    `long:"timeout" description:"Seconds allowed for the whole import" default:"60"`

	globals *GlobalFlags
	version string
	out     io.Writer
	fs      afero.Fs
}
