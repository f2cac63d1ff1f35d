// Package capture reads frames from video devices via OpenCV.
package capture

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrNoFrame is returned when device gives no frame (disconnected camera, end of file)
var ErrNoFrame = errors.New("no frame")

// Webcam is a frame source backed by gocv.VideoCapture
type Webcam struct {
	device *gocv.VideoCapture
	mat    gocv.Mat
}

// OpenWebcam opens video device by id (or file/stream by string)
func OpenWebcam(device interface{}) (*Webcam, error) {
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open video device %v", device)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Errorf("video device %v is not opened", device)
	}
	return &Webcam{
		device: capture,
		mat:    gocv.NewMat(),
	}, nil
}

// Read grabs next frame. Returned image is a fresh copy owned by the caller.
func (webcam *Webcam) Read() (image.Image, error) {
	if ok := webcam.device.Read(&webcam.mat); !ok || webcam.mat.Empty() {
		return nil, ErrNoFrame
	}
	img, err := webcam.mat.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "can't convert frame")
	}
	return img, nil
}

// Close releases the device
func (webcam *Webcam) Close() error {
	if err := webcam.mat.Close(); err != nil {
		return errors.Wrap(err, "can't release frame buffer")
	}
	return errors.Wrap(webcam.device.Close(), "can't release video device")
}
