package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bumpforge/internal/batch"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Convert every image in a directory",
	Long:  "Convert every diffuse image of the source directory into a full texture set written to the destination directory.",
	Args:  cobra.NoArgs,
	RunE:  runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("source", "", "Directory with the input images")
	batchCmd.Flags().String("dest", "", "Existing directory receiving the texture sets")
	batchCmd.Flags().String("format", "png", "Output format: png, jpg, bmp, tga or webp")
	batchCmd.Flags().String("channels", "", "Comma separated channels to save, e.g. normal,height (default: all)")
	batchCmd.Flags().Bool("watch", false, "Keep running and convert images added to the source directory")
	batchCmd.Flags().Bool("software", false, "Use the CPU device instead of OpenGL")

	commandBindings[batchCmd] = []flagBinding{
		{"batch.source", "source"},
		{"batch.dest", "dest"},
		{"output.format", "format"},
		{"output.channels", "channels"},
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	soft, _ := cmd.Flags().GetBool("software")

	opts, err := outputOptions()
	if err != nil {
		return err
	}
	opts.Source = cfg.Batch.Source
	if opts.Source == "" {
		return errors.New("--source is required")
	}

	h, err := openHeadless(soft)
	if err != nil {
		return err
	}
	defer h.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := batch.Run(ctx, h.engine, opts, logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.Source, r.Err)
		}
	}
	fmt.Printf("converted %d of %d images into %s\n", len(results)-failed, len(results), opts.Dest)

	if watch && ctx.Err() == nil {
		fmt.Printf("watching %s, press Ctrl-C to stop\n", opts.Source)
		if err := batch.Watch(ctx, h.engine, opts, logger); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d images failed", failed)
	}
	return nil
}

// outputOptions collects destination, format, channels and suffixes from
// the settings.
func outputOptions() (batch.Options, error) {
	f, err := cfg.Format()
	if err != nil {
		return batch.Options{}, err
	}
	chs, err := cfg.Channels()
	if err != nil {
		return batch.Options{}, err
	}
	if cfg.Batch.Dest == "" {
		return batch.Options{}, errors.New("--dest is required")
	}
	logger.Debug("output", zap.String("dest", cfg.Batch.Dest), zap.String("format", string(f)))
	return batch.Options{Dest: cfg.Batch.Dest, Format: f, Suffix: cfg.Suffix, Channels: chs}, nil
}
