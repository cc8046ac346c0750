// Package naming generates file names for captured photos and videos.
//
// A name is composed from a Config snapshot, an optional base name, the media
// kind and an explicit timestamp. Generating a name never changes any state;
// counters advance only through Engine.Reserve.
package naming

import (
	"fmt"
	"strings"
	"time"
)

// Separator joins the components of a file name.
const Separator = "_"

// DefaultDateFormat is the date pattern used when none is configured.
const DefaultDateFormat = "yyyy-MM-dd_HH-mm-ss"

// Counter digit limits.
const (
	MinCounterDigits     = 3
	MaxCounterDigits     = 6
	DefaultCounterDigits = 4
)

// Kind is the kind of media being named.
type Kind int

const (
	Photo Kind = iota
	Video
)

func (k Kind) String() string {
	if k == Video {
		return "video"
	}
	return "photo"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ImageFormat is the encoding of saved photos.
type ImageFormat string

const (
	JPEG ImageFormat = "JPEG"
	PNG  ImageFormat = "PNG"
	TIFF ImageFormat = "TIFF"
)

// ImageFormats lists the supported image formats.
var ImageFormats = []ImageFormat{JPEG, PNG, TIFF}

// Ext returns the canonical file extension, without dot.
func (f ImageFormat) Ext() string {
	switch f {
	case PNG:
		return "png"
	case TIFF:
		return "tiff"
	}
	return "jpg"
}

// ParseImageFormat returns the format named s, case-insensitively. Unknown
// names yield JPEG.
func ParseImageFormat(s string) ImageFormat {
	for _, f := range ImageFormats {
		if strings.EqualFold(s, string(f)) {
			return f
		}
	}
	return JPEG
}

// VideoFormat is the container of saved videos.
type VideoFormat string

const (
	MOV VideoFormat = "MOV"
	MP4 VideoFormat = "MP4"
)

// VideoFormats lists the supported video containers.
var VideoFormats = []VideoFormat{MOV, MP4}

// Ext returns the canonical file extension, without dot.
func (f VideoFormat) Ext() string {
	if f == MP4 {
		return "mp4"
	}
	return "mov"
}

// ParseVideoFormat returns the format named s, case-insensitively. Unknown
// names yield MOV.
func ParseVideoFormat(s string) VideoFormat {
	for _, f := range VideoFormats {
		if strings.EqualFold(s, string(f)) {
			return f
		}
	}
	return MOV
}

// Config holds the naming settings.
type Config struct {
	Prefix string
	Suffix string

	ImageFormat ImageFormat
	VideoFormat VideoFormat

	IncludeDate bool
	DateFormat  string // LDML pattern, see FormatDate.

	IncludeCounter bool
	PhotoCounter   int
	VideoCounter   int
	CounterDigits  int

	// SavePath is the destination directory, absolute, "~"-relative or
	// relative to the working directory. See ResolveDir.
	SavePath string
}

// DefaultConfig returns the settings of a fresh installation.
func DefaultConfig() Config {
	return Config{
		ImageFormat:   JPEG,
		VideoFormat:   MOV,
		IncludeDate:   true,
		DateFormat:    DefaultDateFormat,
		CounterDigits: DefaultCounterDigits,
		SavePath:      "~/Pictures",
	}
}

// Counter returns the counter used for kind.
func (c Config) Counter(kind Kind) int {
	if kind == Video {
		return c.VideoCounter
	}
	return c.PhotoCounter
}

// Ext returns the file extension used for kind.
func (c Config) Ext(kind Kind) string {
	if kind == Video {
		return c.VideoFormat.Ext()
	}
	return c.ImageFormat.Ext()
}

// Preview returns the file name for base, kind and ts. The components are, in
// order and each only when present: prefix, date, counter, base, suffix.
func Preview(cfg Config, base string, kind Kind, ts time.Time) string {
	var l []string
	if cfg.Prefix != "" {
		l = append(l, cfg.Prefix)
	}
	if cfg.IncludeDate {
		pattern := cfg.DateFormat
		if pattern == "" {
			pattern = DefaultDateFormat
		}
		l = append(l, FormatDate(pattern, ts))
	}
	if cfg.IncludeCounter {
		l = append(l, FormatCounter(cfg.Counter(kind), cfg.CounterDigits))
	}
	if base != "" {
		l = append(l, base)
	}
	if cfg.Suffix != "" {
		l = append(l, cfg.Suffix)
	}
	return strings.Join(l, Separator) + "." + cfg.Ext(kind)
}

// ClampDigits limits a counter width to the supported range.
func ClampDigits(digits int) int {
	if digits < MinCounterDigits {
		return MinCounterDigits
	}
	if digits > MaxCounterDigits {
		return MaxCounterDigits
	}
	return digits
}

// FormatCounter zero-pads n to digits, clamped with ClampDigits. Larger values
// are not truncated.
func FormatCounter(n, digits int) string {
	if n < 0 {
		n = 0
	}
	return fmt.Sprintf("%0*d", ClampDigits(digits), n)
}
