package cli

import (
	"fmt"
	"io"

	"cookietrail/services/recorder/internal/cookie"
)

type parsedHeader struct {
	Header   string           `json:"header"`
	Identity *cookie.Identity `json:"identity,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Execute implements the go-flags Commander interface for ParseCommand.
func (c *ParseCommand) Execute(args []string) error {
	return c.run(outputOrStdout(c.out))
}

func (c *ParseCommand) run(out io.Writer) error {
	results := make([]parsedHeader, 0, len(c.Headers))
	for _, header := range c.Headers {
		results = append(results, parseHeader(header))
	}
	return writeJSON(out, results)
}

func parseHeader(header string) parsedHeader {
	identity, ok := cookie.Parse(header)
	if !ok {
		return parsedHeader{Header: header, Error: "no cookie name"}
	}
	return parsedHeader{Header: header, Identity: &identity}
}

func describeIdentity(id cookie.Identity) string {
	domain := id.Domain
	if domain == "" {
		domain = "-"
	}
	return fmt.Sprintf("%s domain=%s path=%s", id.Name, domain, id.Path)
}
