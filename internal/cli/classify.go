package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"cookietrail/services/recorder/internal/classifier"
	"cookietrail/services/recorder/internal/knowledge"
)

type classifiedHeader struct {
	Header string             `json:"header"`
	Result *classifier.Result `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// Execute implements the go-flags Commander interface for ClassifyCommand.
func (c *ClassifyCommand) Execute(args []string) error {
	weights, err := loadWeights(c.globals)
	if err != nil {
		return err
	}

	cookieClassifier := classifier.New(weights)
	err = knowledge.Load(context.Background(), cookieClassifier, c.KnowledgeBase, sourceOptions(c.fs, c.Table), secondsOr(c.TimeoutSeconds, 30*time.Second))
	if err != nil {
		return fmt.Errorf("load reference database: %w", err)
	}

	return c.run(outputOrStdout(c.out), cookieClassifier)
}

func (c *ClassifyCommand) run(out io.Writer, cookieClassifier *classifier.Classifier) error {
	results := make([]classifiedHeader, 0, len(c.Headers))
	for _, header := range c.Headers {
		parsed := parseHeader(header)
		if parsed.Identity == nil {
			results = append(results, classifiedHeader{Header: header, Error: parsed.Error})
			continue
		}
		result := cookieClassifier.Classify(*parsed.Identity)
		results = append(results, classifiedHeader{Header: header, Result: &result})
	}

	if wantsJSON(c.globals) {
		return writeJSON(out, results)
	}

	for _, item := range results {
		if item.Result == nil {
			fmt.Fprintf(out, "%-40s  skipped (%s)\n", item.Header, item.Error)
			continue
		}
		match := "-"
		if item.Result.Entry != nil {
			match = item.Result.Entry.ID
		}
		fmt.Fprintf(out, "%-40s  %-15s %-6s score=%d match=%s\n",
			describeIdentity(item.Result.Identity),
			item.Result.Category,
			item.Result.Confidence,
			item.Result.Score,
			match,
		)
	}
	return nil
}
