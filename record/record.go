// Package record writes preview frames to a video file.
package record

import (
	"fmt"
	"image"

	mucapture "github.com/cvrt-gmbh/mucapture"

	"gocv.io/x/gocv"
)

// Writer receives the frames of one recording.
type Writer interface {
	WriteFrame(img image.Image) error
	// Close finalizes the file. The file is not usable before Close.
	Close() error
}

// Opener creates a Writer for a recording at path, with frames of size at fps.
type Opener func(path string, fps float64, size image.Point) (Writer, error)

// Codec is the fourcc used by GoCVWriter.
const Codec = "mp4v"

// GoCVWriter encodes frames with OpenCV.
type GoCVWriter struct {
	vw   *gocv.VideoWriter
	size image.Point
}

var _ Writer = (*GoCVWriter)(nil)

// OpenGoCV is an Opener using OpenCV's VideoWriter.
func OpenGoCV(path string, fps float64, size image.Point) (Writer, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("%w: invalid frame size %v", mucapture.ErrRecordingFailed, size)
	}
	vw, err := gocv.VideoWriterFile(path, Codec, fps, size.X, size.Y, true)
	if err != nil {
		return nil, fmt.Errorf("%w: creating video writer: %v", mucapture.ErrRecordingFailed, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("%w: video writer for %s not opened", mucapture.ErrRecordingFailed, path)
	}
	return &GoCVWriter{vw: vw, size: size}, nil
}

// WriteFrame appends img, scaled to the recording size if needed.
func (w *GoCVWriter) WriteFrame(img image.Image) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("%w: converting frame: %v", mucapture.ErrEncodingFailed, err)
	}
	defer mat.Close()

	if mat.Cols() != w.size.X || mat.Rows() != w.size.Y {
		scaled := gocv.NewMat()
		defer scaled.Close()
		gocv.Resize(mat, &scaled, w.size, 0, 0, gocv.InterpolationLinear)
		return w.write(scaled)
	}
	return w.write(mat)
}

func (w *GoCVWriter) write(mat gocv.Mat) error {
	if err := w.vw.Write(mat); err != nil {
		return fmt.Errorf("%w: writing frame: %v", mucapture.ErrRecordingFailed, err)
	}
	return nil
}

// Close finalizes the video file.
func (w *GoCVWriter) Close() error {
	return w.vw.Close()
}
