// Package texture holds the channel vocabulary of a PBR texture set and the
// float image type the conversion pipeline reads and writes.
package texture

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnsupportedChannel is returned when an operation is requested on a
// channel it does not apply to.
var ErrUnsupportedChannel = errors.New("unsupported channel")

// Channel identifies one texture of a material set.
type Channel int

const (
	Diffuse Channel = iota
	Normal
	Specular
	Height
	Occlusion
	Roughness
	Metallic
	Grunge
	Material
)

// NumChannels is the number of channels a store holds.
const NumChannels = 9

var channelNames = [NumChannels]string{
	"diffuse", "normal", "specular", "height", "occlusion",
	"roughness", "metallic", "grunge", "material",
}

func (c Channel) String() string {
	if !c.Valid() {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return channelNames[c]
}

func (c Channel) Valid() bool { return c >= 0 && c < NumChannels }

// ParseChannel accepts the lower-case channel name.
func ParseChannel(s string) (Channel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range channelNames {
		if n == s {
			return Channel(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedChannel, s)
}

// All returns every channel in declaration order.
func All() []Channel {
	out := make([]Channel, NumChannels)
	for i := range out {
		out[i] = Channel(i)
	}
	return out
}

// Exported lists the channels written by a save-all or a batch run.
func Exported() []Channel {
	return []Channel{Diffuse, Normal, Specular, Height, Occlusion, Roughness, Metallic}
}

// ParseExported reads a comma separated list of exported channel names.
// An empty list selects every exported channel. Duplicates are dropped
// and the result is in Exported order.
func ParseExported(s string) ([]Channel, error) {
	if strings.TrimSpace(s) == "" {
		return Exported(), nil
	}
	want := map[Channel]bool{}
	for _, name := range strings.Split(s, ",") {
		ch, err := ParseChannel(name)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(Exported(), ch) {
			return nil, fmt.Errorf("%w: %s is not saved", ErrUnsupportedChannel, ch)
		}
		want[ch] = true
	}
	var out []Channel
	for _, ch := range Exported() {
		if want[ch] {
			out = append(out, ch)
		}
	}
	return out, nil
}

// Neutral is the value a channel holds when nothing was loaded or derived
// for it. Every value is a valid input for the channels downstream.
func (c Channel) Neutral() [4]float32 {
	switch c {
	case Diffuse:
		return [4]float32{0.5, 0.5, 0.5, 1}
	case Normal:
		return [4]float32{0.5, 0.5, 1, 1}
	case Height, Specular, Metallic:
		return [4]float32{0, 0, 0, 1}
	case Material:
		// Alpha 0 marks texels outside every region.
		return [4]float32{0, 0, 0, 0}
	case Occlusion:
		return [4]float32{1, 1, 1, 1}
	case Roughness, Grunge:
		return [4]float32{0.5, 0.5, 0.5, 1}
	}
	return [4]float32{0, 0, 0, 1}
}

// DefaultSuffix is appended to the base file name when the channel is saved.
func (c Channel) DefaultSuffix() string {
	switch c {
	case Diffuse:
		return "_d"
	case Normal:
		return "_n"
	case Specular:
		return "_s"
	case Height:
		return "_h"
	case Occlusion:
		return "_o"
	case Roughness:
		return "_r"
	case Metallic:
		return "_m"
	case Grunge:
		return "_g"
	case Material:
		return "_mat"
	}
	return ""
}

// Grayscale reports whether the channel stores a single value replicated
// across RGB.
func (c Channel) Grayscale() bool {
	switch c {
	case Specular, Height, Occlusion, Roughness, Metallic, Grunge:
		return true
	}
	return false
}
