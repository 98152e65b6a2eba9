package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/afero"

	"cookietrail/services/recorder/internal/classifier"
	"cookietrail/services/recorder/internal/config"
	"cookietrail/services/recorder/internal/knowledge"
)

func outputOrStdout(out io.Writer) io.Writer {
	if out == nil {
		return os.Stdout
	}
	return out
}

func fsOrOS(fs afero.Fs) afero.Fs {
	if fs == nil {
		return afero.NewOsFs()
	}
	return fs
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func wantsJSON(globals *GlobalFlags) bool {
	return globals != nil && globals.JSON
}

// loadWeights falls back to the default weights when no scoring file is set.
func loadWeights(globals *GlobalFlags) (classifier.Weights, error) {
	if globals == nil {
		return classifier.DefaultWeights(), nil
	}
	return config.LoadScoring(globals.Scoring)
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// sourceOptions takes object-store settings from the same environment the
// service reads.
func sourceOptions(fs afero.Fs, table string) knowledge.Options {
	cfg := config.Load()
	return knowledge.Options{
		Fs:         fsOrOS(fs),
		S3Region:   cfg.S3Region,
		S3Endpoint: cfg.S3Endpoint,
		S3Access:   cfg.S3AccessKey,
		S3Secret:   cfg.S3SecretKey,
		Table:      table,
	}
}
