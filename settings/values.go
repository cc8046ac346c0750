package settings

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cvrt-gmbh/mucapture/keybind"
	"github.com/cvrt-gmbh/mucapture/naming"
)

// Keys in the Store.
const (
	KeySavePath          = "savePath"
	KeyPreferredDeviceID = "preferredDeviceID"
	KeyFilePrefix        = "filePrefix"
	KeyFileSuffix        = "fileSuffix"
	KeyImageFormat       = "imageFormat"
	KeyVideoFormat       = "videoFormat"
	KeyIncludeDate       = "includeDate"
	KeyDateFormat        = "dateFormat"
	KeyPhotoKey          = "photoKey"
	KeyVideoKey          = "videoKey"
	KeyQuickPhotoKey     = "quickPhotoKey"
	KeyQuickVideoKey     = "quickVideoKey"
	KeyFlashEnabled      = "flashEnabled"
	KeySoundEnabled      = "soundEnabled"
	KeyIncludeCounter    = "includeCounter"
	KeyPhotoCounter      = "photoCounter"
	KeyVideoCounter      = "videoCounter"
	KeyCounterDigits     = "counterDigits"
)

// Values is a snapshot of all settings.
type Values struct {
	SavePath          string             `json:"savePath"`
	PreferredDeviceID string             `json:"preferredDeviceID"`
	FilePrefix        string             `json:"filePrefix"`
	FileSuffix        string             `json:"fileSuffix"`
	ImageFormat       naming.ImageFormat `json:"imageFormat"`
	VideoFormat       naming.VideoFormat `json:"videoFormat"`
	IncludeDate       bool               `json:"includeDate"`
	DateFormat        string             `json:"dateFormat"`
	PhotoKey          keybind.KeyBinding `json:"photoKey"`
	VideoKey          keybind.KeyBinding `json:"videoKey"`
	QuickPhotoKey     keybind.KeyBinding `json:"quickPhotoKey"`
	QuickVideoKey     keybind.KeyBinding `json:"quickVideoKey"`
	FlashEnabled      bool               `json:"flashEnabled"`
	SoundEnabled      bool               `json:"soundEnabled"`
	IncludeCounter    bool               `json:"includeCounter"`
	PhotoCounter      int                `json:"photoCounter"`
	VideoCounter      int                `json:"videoCounter"`
	CounterDigits     int                `json:"counterDigits"`
}

// Defaults returns the values of a fresh installation.
func Defaults() Values {
	n := naming.DefaultConfig()
	k := keybind.DefaultSet()
	return Values{
		SavePath:      n.SavePath,
		ImageFormat:   n.ImageFormat,
		VideoFormat:   n.VideoFormat,
		IncludeDate:   n.IncludeDate,
		DateFormat:    n.DateFormat,
		PhotoKey:      k.Photo,
		VideoKey:      k.Video,
		QuickPhotoKey: k.QuickPhoto,
		QuickVideoKey: k.QuickVideo,
		CounterDigits: n.CounterDigits,
	}
}

// Naming returns the naming configuration.
func (v Values) Naming() naming.Config {
	return naming.Config{
		Prefix:         v.FilePrefix,
		Suffix:         v.FileSuffix,
		ImageFormat:    v.ImageFormat,
		VideoFormat:    v.VideoFormat,
		IncludeDate:    v.IncludeDate,
		DateFormat:     v.DateFormat,
		IncludeCounter: v.IncludeCounter,
		PhotoCounter:   v.PhotoCounter,
		VideoCounter:   v.VideoCounter,
		CounterDigits:  v.CounterDigits,
		SavePath:       v.SavePath,
	}
}

// Bindings returns the key bindings.
func (v Values) Bindings() keybind.Set {
	return keybind.Set{
		Photo:      v.PhotoKey,
		Video:      v.VideoKey,
		QuickPhoto: v.QuickPhotoKey,
		QuickVideo: v.QuickVideoKey,
	}
}

// encode returns the store representation of all values.
func (v Values) encode() map[string]string {
	b := strconv.FormatBool
	i := strconv.Itoa
	return map[string]string{
		KeySavePath:          v.SavePath,
		KeyPreferredDeviceID: v.PreferredDeviceID,
		KeyFilePrefix:        v.FilePrefix,
		KeyFileSuffix:        v.FileSuffix,
		KeyImageFormat:       string(v.ImageFormat),
		KeyVideoFormat:       string(v.VideoFormat),
		KeyIncludeDate:       b(v.IncludeDate),
		KeyDateFormat:        v.DateFormat,
		KeyPhotoKey:          encodeBinding(v.PhotoKey),
		KeyVideoKey:          encodeBinding(v.VideoKey),
		KeyQuickPhotoKey:     encodeBinding(v.QuickPhotoKey),
		KeyQuickVideoKey:     encodeBinding(v.QuickVideoKey),
		KeyFlashEnabled:      b(v.FlashEnabled),
		KeySoundEnabled:      b(v.SoundEnabled),
		KeyIncludeCounter:    b(v.IncludeCounter),
		KeyPhotoCounter:      i(v.PhotoCounter),
		KeyVideoCounter:      i(v.VideoCounter),
		KeyCounterDigits:     i(v.CounterDigits),
	}
}

func encodeBinding(b keybind.KeyBinding) string {
	buf, _ := json.Marshal(b)
	return string(buf)
}

// decode sets the field of key from its store representation.
func (v *Values) decode(key, s string) error {
	var err error
	parseBool := func(p *bool) {
		*p, err = strconv.ParseBool(s)
	}
	parseCount := func(p *int) {
		var n int
		n, err = strconv.Atoi(s)
		if err == nil && n < 0 {
			err = fmt.Errorf("negative counter %d", n)
		}
		if err == nil {
			*p = n
		}
	}
	parseBinding := func(p *keybind.KeyBinding) {
		var b keybind.KeyBinding
		if err = json.Unmarshal([]byte(s), &b); err == nil {
			*p = b
		}
	}

	switch key {
	case KeySavePath:
		v.SavePath = s
	case KeyPreferredDeviceID:
		v.PreferredDeviceID = s
	case KeyFilePrefix:
		v.FilePrefix = s
	case KeyFileSuffix:
		v.FileSuffix = s
	case KeyImageFormat:
		v.ImageFormat = naming.ParseImageFormat(s)
	case KeyVideoFormat:
		v.VideoFormat = naming.ParseVideoFormat(s)
	case KeyIncludeDate:
		parseBool(&v.IncludeDate)
	case KeyDateFormat:
		v.DateFormat = s
	case KeyPhotoKey:
		parseBinding(&v.PhotoKey)
	case KeyVideoKey:
		parseBinding(&v.VideoKey)
	case KeyQuickPhotoKey:
		parseBinding(&v.QuickPhotoKey)
	case KeyQuickVideoKey:
		parseBinding(&v.QuickVideoKey)
	case KeyFlashEnabled:
		parseBool(&v.FlashEnabled)
	case KeySoundEnabled:
		parseBool(&v.SoundEnabled)
	case KeyIncludeCounter:
		parseBool(&v.IncludeCounter)
	case KeyPhotoCounter:
		parseCount(&v.PhotoCounter)
	case KeyVideoCounter:
		parseCount(&v.VideoCounter)
	case KeyCounterDigits:
		var n int
		if n, err = strconv.Atoi(s); err == nil {
			v.CounterDigits = naming.ClampDigits(n)
		}
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return err
}

// allKeys lists the keys in a stable order.
var allKeys = []string{
	KeySavePath, KeyPreferredDeviceID, KeyFilePrefix, KeyFileSuffix,
	KeyImageFormat, KeyVideoFormat, KeyIncludeDate, KeyDateFormat,
	KeyPhotoKey, KeyVideoKey, KeyQuickPhotoKey, KeyQuickVideoKey,
	KeyFlashEnabled, KeySoundEnabled,
	KeyIncludeCounter, KeyPhotoCounter, KeyVideoCounter, KeyCounterDigits,
}
