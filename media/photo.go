package media

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"path/filepath"

	mucapture "github.com/cvrt-gmbh/mucapture"
	"github.com/cvrt-gmbh/mucapture/naming"

	"github.com/disintegration/imaging"
)

// JPEGQuality is the quality of saved JPEG photos.
const JPEGQuality = 90

func imagingFormat(f naming.ImageFormat) imaging.Format {
	switch f {
	case naming.PNG:
		return imaging.PNG
	case naming.TIFF:
		return imaging.TIFF
	}
	return imaging.JPEG
}

// EncodePhoto writes img to w in format f.
func EncodePhoto(w io.Writer, img image.Image, f naming.ImageFormat) error {
	if img == nil {
		return fmt.Errorf("%w: no image", mucapture.ErrEncodingFailed)
	}
	if err := imaging.Encode(w, img, imagingFormat(f), imaging.JPEGQuality(JPEGQuality)); err != nil {
		return fmt.Errorf("%w: %v", mucapture.ErrEncodingFailed, err)
	}
	return nil
}

// SavePhoto encodes img and writes it to path, creating the directory first.
func SavePhoto(fsys FS, img image.Image, f naming.ImageFormat, path string) error {
	var buf bytes.Buffer
	if err := EncodePhoto(&buf, img, f); err != nil {
		return err
	}
	if err := fsys.MkdirAll(filepath.Dir(path)); err != nil {
		return fmt.Errorf("%w: making directory: %v", mucapture.ErrWriteFailed, err)
	}
	if err := fsys.WriteFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", mucapture.ErrWriteFailed, err)
	}
	return nil
}
