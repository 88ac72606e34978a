// Package batch converts every image of a directory into a full texture
// set, one file at a time.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"go.uber.org/zap"

	"bumpforge/pipeline"
	"bumpforge/texture"
)

// ErrOutputDirMissing is returned before any file is read when the
// destination directory does not exist.
var ErrOutputDirMissing = errors.New("output directory does not exist")

type Options struct {
	Source string
	Dest   string
	Format texture.Format
	// Suffix names the file of each channel; nil uses the built-in suffixes.
	Suffix func(texture.Channel) string
	// Channels selects the channels written; nil writes every exported one.
	Channels []texture.Channel
	// Settle is how long a watched file must stay unchanged before it is
	// converted.
	Settle time.Duration
}

func (o Options) suffix(ch texture.Channel) string {
	if o.Suffix == nil {
		return ch.DefaultSuffix()
	}
	return o.Suffix(ch)
}

func (o Options) channels() []texture.Channel {
	if o.Channels == nil {
		return texture.Exported()
	}
	return o.Channels
}

// Result is the outcome for one source image.
type Result struct {
	Source  string
	Written []string
	Err     error
}

// Scan lists the convertible images of dir in name order. Content is
// sniffed; TGA carries no signature and is accepted by extension.
func Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("batch: scan %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if Accept(path) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Accept reports whether path holds an image the pipeline can load.
func Accept(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".tga" {
		return true
	}
	if !texture.InputExt(ext) {
		return false
	}
	kind, err := filetype.MatchFile(path)
	if err != nil || kind == filetype.Unknown {
		return false
	}
	return kind.MIME.Type == "image" && texture.InputExt("."+kind.Extension)
}

func checkDest(dir string) error {
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return fmt.Errorf("batch: %w: %s", ErrOutputDirMissing, dir)
	}
	return nil
}

// Run converts every image in opts.Source. Failures of single files are
// reported in their Result and do not stop the run; cancellation is
// checked between files.
func Run(ctx context.Context, eng *pipeline.Engine, opts Options, log *zap.Logger) ([]Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := checkDest(opts.Dest); err != nil {
		return nil, err
	}
	files, err := Scan(opts.Source)
	if err != nil {
		return nil, err
	}
	log.Info("batch started", zap.String("source", opts.Source), zap.String("dest", opts.Dest), zap.Int("files", len(files)))

	start := time.Now()
	results := make([]Result, 0, len(files))
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := Process(eng, path, opts)
		if res.Err != nil {
			log.Warn("batch file failed", zap.String("file", path), zap.Error(res.Err))
		} else {
			log.Info("batch file done", zap.String("file", path), zap.Int("n", i+1), zap.Int("of", len(files)))
		}
		results = append(results, res)
	}
	log.Info("batch finished", zap.Int("files", len(results)), zap.Duration("elapsed", time.Since(start)))
	return results, nil
}

// Process converts one image and writes its channel set.
func Process(eng *pipeline.Engine, path string, opts Options) Result {
	res := Result{Source: path}
	img, err := texture.Load(path)
	if err != nil {
		res.Err = err
		return res
	}

	guard := eng.ShadowRender()
	defer guard.Release()

	// The load must not trigger its own conversion; the explicit one below
	// is the single derivation of the set.
	st := eng.State()
	enabled := st.Diffuse.EnableConversion
	st.Diffuse.EnableConversion = false
	err = eng.LoadImage(texture.Diffuse, img)
	st.Diffuse.EnableConversion = enabled
	if err != nil {
		res.Err = err
		return res
	}
	if err := eng.Convert(pipeline.ConvertDiffuseToOthers, texture.Diffuse, pipeline.WithShadowRender()); err != nil {
		res.Err = err
		return res
	}

	res.Written, res.Err = WriteSet(eng.Store(), texture.BaseName(path), opts)
	return res
}

// WriteSet encodes the selected channels to temporary files and only
// renames them into place once all of them were written.
func WriteSet(store *pipeline.Store, base string, opts Options) ([]string, error) {
	type pending struct{ tmp, final string }
	var files []pending
	cleanup := func() {
		for _, p := range files {
			os.Remove(p.tmp)
		}
	}

	for _, ch := range opts.channels() {
		img, err := store.Image(ch)
		if err != nil {
			cleanup()
			return nil, err
		}
		final := filepath.Join(opts.Dest, texture.OutputName(base, opts.suffix(ch), opts.Format))
		tmp, err := writeTemp(opts.Dest, img, opts.Format)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("batch: %s: %w", final, err)
		}
		files = append(files, pending{tmp: tmp, final: final})
	}

	written := make([]string, 0, len(files))
	for i, p := range files {
		if err := os.Rename(p.tmp, p.final); err != nil {
			for _, q := range files[i:] {
				os.Remove(q.tmp)
			}
			return written, fmt.Errorf("batch: rename %s: %w", p.final, err)
		}
		written = append(written, p.final)
	}
	return written, nil
}

func writeTemp(dir string, img *texture.Image, f texture.Format) (string, error) {
	tmp, err := os.CreateTemp(dir, ".bumpforge-*"+f.Ext())
	if err != nil {
		return "", err
	}
	if err := texture.Encode(tmp, img, f); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
