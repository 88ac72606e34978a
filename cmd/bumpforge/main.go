package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"bumpforge/internal/config"
	"bumpforge/internal/logging"
)

var (
	settings = config.New()
	cfg      *config.Config
	logger   = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "bumpforge",
	Short:         "Generate PBR texture sets from a single image",
	Long:          "bumpforge derives normal, height, specular, occlusion, roughness and metallic maps from a diffuse image and previews them on a mesh.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", config.DefaultFile, "Settings file (INI)")
	rootCmd.PersistentFlags().String("log", logging.DefaultFile, "Log file, recreated on every start")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output and mirror it to stderr")

}

type flagBinding struct {
	key  string
	flag string
}

// Several commands share settings keys, so only the flags of the command
// being run are bound.
var (
	globalBindings = []flagBinding{
		{"log.path", "log"},
		{"log.verbose", "verbose"},
	}
	commandBindings = map[*cobra.Command][]flagBinding{}
)

func mustBind(v *viper.Viper, flags *pflag.FlagSet, bindings []flagBinding) {
	for _, bf := range bindings {
		if err := v.BindPFlag(bf.key, flags.Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func setup(cmd *cobra.Command) error {
	mustBind(settings, cmd.Flags(), globalBindings)
	mustBind(settings, cmd.Flags(), commandBindings[cmd])

	path, _ := cmd.Flags().GetString("config")
	var err error
	if cfg, err = config.Load(settings, path); err != nil {
		return err
	}
	log, logPath, err := logging.New(logging.Options{Path: cfg.Log.Path, Verbose: cfg.Log.Verbose})
	if err != nil {
		return err
	}
	logger = log
	logger.Info("bumpforge started",
		zap.String("command", cmd.Name()),
		zap.String("config", path),
		zap.String("log", logPath),
	)
	return nil
}

func main() {
	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "bumpforge:", strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
