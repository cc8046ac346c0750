package settings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cvrt-gmbh/mucapture/keybind"
	"github.com/cvrt-gmbh/mucapture/naming"
)

// ErrInvalid is returned by Update for values out of range.
var ErrInvalid = errors.New("invalid setting")

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	SavePath          *string             `json:"savePath,omitempty"`
	PreferredDeviceID *string             `json:"preferredDeviceID,omitempty"`
	FilePrefix        *string             `json:"filePrefix,omitempty"`
	FileSuffix        *string             `json:"fileSuffix,omitempty"`
	ImageFormat       *string             `json:"imageFormat,omitempty"`
	VideoFormat       *string             `json:"videoFormat,omitempty"`
	IncludeDate       *bool               `json:"includeDate,omitempty"`
	DateFormat        *string             `json:"dateFormat,omitempty"`
	PhotoKey          *keybind.KeyBinding `json:"photoKey,omitempty"`
	VideoKey          *keybind.KeyBinding `json:"videoKey,omitempty"`
	QuickPhotoKey     *keybind.KeyBinding `json:"quickPhotoKey,omitempty"`
	QuickVideoKey     *keybind.KeyBinding `json:"quickVideoKey,omitempty"`
	FlashEnabled      *bool               `json:"flashEnabled,omitempty"`
	SoundEnabled      *bool               `json:"soundEnabled,omitempty"`
	IncludeCounter    *bool               `json:"includeCounter,omitempty"`
	PhotoCounter      *int                `json:"photoCounter,omitempty"`
	VideoCounter      *int                `json:"videoCounter,omitempty"`
	CounterDigits     *int                `json:"counterDigits,omitempty"`
}

// TouchesBindings returns whether p changes a key binding.
func (p Patch) TouchesBindings() bool {
	return p.PhotoKey != nil || p.VideoKey != nil || p.QuickPhotoKey != nil || p.QuickVideoKey != nil
}

func (p Patch) apply(v *Values) error {
	if p.ImageFormat != nil {
		f := naming.ParseImageFormat(*p.ImageFormat)
		if !strings.EqualFold(string(f), *p.ImageFormat) {
			return fmt.Errorf("%w: unknown image format %q", ErrInvalid, *p.ImageFormat)
		}
		v.ImageFormat = f
	}
	if p.VideoFormat != nil {
		f := naming.ParseVideoFormat(*p.VideoFormat)
		if !strings.EqualFold(string(f), *p.VideoFormat) {
			return fmt.Errorf("%w: unknown video format %q", ErrInvalid, *p.VideoFormat)
		}
		v.VideoFormat = f
	}
	// Counters only move forward, or back to zero.
	for _, c := range []struct {
		name     string
		cur, next *int
	}{
		{"photo", &v.PhotoCounter, p.PhotoCounter},
		{"video", &v.VideoCounter, p.VideoCounter},
	} {
		if c.next == nil || *c.next == 0 {
			continue
		}
		if *c.next < 0 {
			return fmt.Errorf("%w: %s counter must not be negative", ErrInvalid, c.name)
		}
		if *c.next < *c.cur {
			return fmt.Errorf("%w: %s counter can only be reset to 0, not lowered from %d to %d", ErrInvalid, c.name, *c.cur, *c.next)
		}
	}
	if p.CounterDigits != nil && (*p.CounterDigits < naming.MinCounterDigits || *p.CounterDigits > naming.MaxCounterDigits) {
		return fmt.Errorf("%w: counter digits must be between %d and %d", ErrInvalid, naming.MinCounterDigits, naming.MaxCounterDigits)
	}
	if p.SavePath != nil && strings.TrimSpace(*p.SavePath) == "" {
		return fmt.Errorf("%w: save path must not be empty", ErrInvalid)
	}

	setString(&v.SavePath, p.SavePath)
	setString(&v.PreferredDeviceID, p.PreferredDeviceID)
	setString(&v.FilePrefix, p.FilePrefix)
	setString(&v.FileSuffix, p.FileSuffix)
	setString(&v.DateFormat, p.DateFormat)
	setBool(&v.IncludeDate, p.IncludeDate)
	setBool(&v.FlashEnabled, p.FlashEnabled)
	setBool(&v.SoundEnabled, p.SoundEnabled)
	setBool(&v.IncludeCounter, p.IncludeCounter)
	setInt(&v.PhotoCounter, p.PhotoCounter)
	setInt(&v.VideoCounter, p.VideoCounter)
	setInt(&v.CounterDigits, p.CounterDigits)
	setBinding(&v.PhotoKey, p.PhotoKey)
	setBinding(&v.VideoKey, p.VideoKey)
	setBinding(&v.QuickPhotoKey, p.QuickPhotoKey)
	setBinding(&v.QuickVideoKey, p.QuickVideoKey)
	return nil
}

func setString(dst, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBinding(dst, src *keybind.KeyBinding) {
	if src != nil {
		*dst = *src
	}
}
