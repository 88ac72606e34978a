package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bumpforge/internal/batch"
	"bumpforge/pipeline"
	"bumpforge/texture"
)

var convertCmd = &cobra.Command{
	Use:   "convert <image>",
	Short: "Run one conversion and write the texture set",
	Long: `Load an image into the channel the conversion reads from, run the conversion and
write every exported channel. Modes:
  diffuse-to-others           image is the diffuse map
  height-to-normal            image is a height map
  normal-to-height            image is a normal map
  height-normal-to-occlusion  image is a height map, --normal optionally supplies the normal map`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().String("mode", pipeline.ConvertDiffuseToOthers.String(), "Conversion to run")
	convertCmd.Flags().String("normal", "", "Normal map for height-normal-to-occlusion")
	convertCmd.Flags().String("dest", "", "Existing directory receiving the texture set (default: next to the image)")
	convertCmd.Flags().String("format", "png", "Output format: png, jpg, bmp, tga or webp")
	convertCmd.Flags().String("channels", "", "Comma separated channels to save, e.g. normal,height (default: all)")
	convertCmd.Flags().String("seamless", "none", "Seamless mode applied to the diffuse input: none, simple, mirror or random")
	convertCmd.Flags().Bool("software", false, "Use the CPU device instead of OpenGL")

	commandBindings[convertCmd] = []flagBinding{
		{"batch.dest", "dest"},
		{"output.format", "format"},
		{"output.channels", "channels"},
		{"seamless.mode", "seamless"},
	}
}

// convertInput is the channel each mode reads its image into.
var convertInput = map[pipeline.ConversionMode]texture.Channel{
	pipeline.ConvertDiffuseToOthers:         texture.Diffuse,
	pipeline.ConvertHeightToNormal:          texture.Height,
	pipeline.ConvertNormalToHeight:          texture.Normal,
	pipeline.ConvertHeightNormalToOcclusion: texture.Height,
}

func runConvert(cmd *cobra.Command, args []string) error {
	modeName, _ := cmd.Flags().GetString("mode")
	normalPath, _ := cmd.Flags().GetString("normal")
	soft, _ := cmd.Flags().GetBool("software")

	mode, err := pipeline.ParseConversionMode(modeName)
	if err != nil {
		return err
	}
	in, ok := convertInput[mode]
	if !ok {
		return fmt.Errorf("mode %s takes no input image", mode)
	}
	if cfg.Batch.Dest == "" {
		cfg.Batch.Dest = filepath.Dir(args[0])
	}
	opts, err := outputOptions()
	if err != nil {
		return err
	}
	img, err := texture.Load(args[0])
	if err != nil {
		return err
	}

	h, err := openHeadless(soft)
	if err != nil {
		return err
	}
	defer h.Close()
	eng := h.engine

	guard := eng.ShadowRender()
	defer guard.Release()

	eng.State().Diffuse.EnableConversion = false
	if in != texture.Diffuse {
		if err := eng.Resize(img.Width, img.Height); err != nil {
			return err
		}
	}
	if err := eng.LoadImage(in, img); err != nil {
		return err
	}

	if mode == pipeline.ConvertHeightNormalToOcclusion {
		if normalPath != "" {
			nimg, err := texture.Load(normalPath)
			if err != nil {
				return err
			}
			if nimg.Width != img.Width || nimg.Height != img.Height {
				nimg = texture.Resize(nimg, img.Width, img.Height)
			}
			if err := eng.LoadImage(texture.Normal, nimg); err != nil {
				return err
			}
		} else if err := eng.Convert(pipeline.ConvertHeightToNormal, texture.Normal, pipeline.WithShadowRender()); err != nil {
			return err
		}
	}
	if err := eng.Convert(mode, in, pipeline.WithShadowRender()); err != nil {
		return err
	}

	written, err := batch.WriteSet(eng.Store(), texture.BaseName(args[0]), opts)
	if err != nil {
		return err
	}
	logger.Info("conversion written", zap.Stringer("mode", mode), zap.Int("files", len(written)))
	for _, p := range written {
		fmt.Println(p)
	}
	return nil
}
