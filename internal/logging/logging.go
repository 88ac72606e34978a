// Package logging builds the zap logger shared by every command.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const DefaultFile = "bumpforge.log"

type Options struct {
	// Path of the log file. It is truncated on every start.
	Path    string
	Verbose bool
}

// New opens the log file and returns a logger writing JSON lines to it.
// When Path cannot be created the file is placed in the home directory
// under the same base name. Verbose mirrors debug output to stderr.
func New(opts Options) (*zap.Logger, string, error) {
	path := opts.Path
	if path == "" {
		path = DefaultFile
	}
	f, err := openTruncated(path)
	if err != nil {
		alt, herr := homeFallback(path)
		if herr != nil {
			return nil, "", fmt.Errorf("logging: open %s: %w", path, err)
		}
		if f, err = openTruncated(alt); err != nil {
			return nil, "", fmt.Errorf("logging: open %s: %w", alt, err)
		}
		path = alt
	}

	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if opts.Verbose {
		level.SetLevel(zap.DebugLevel)
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(f), level),
	}
	if opts.Verbose {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), path, nil
}

func openTruncated(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

func homeFallback(path string) (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, filepath.Base(path)), nil
}

// Nop is used by components constructed without a logger.
func Nop() *zap.Logger { return zap.NewNop() }
