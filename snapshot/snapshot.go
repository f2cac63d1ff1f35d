// Package snapshot prepares frame snapshots for storage.
package snapshot

import (
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/gift"
	"github.com/pkg/errors"
)

// Prepare downsizes image to maxWidth keeping aspect ratio. Non-positive maxWidth or narrower images are returned as is.
func Prepare(img image.Image, maxWidth int) image.Image {
	if img == nil || maxWidth <= 0 || img.Bounds().Dx() <= maxWidth {
		return img
	}
	g := gift.New(gift.Resize(maxWidth, 0, gift.LanczosResampling))
	dst := image.NewRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}

// EncodeJPEG writes image as JPEG
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if img == nil {
		return errors.New("no image to encode")
	}
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
		return errors.Wrap(err, "can't encode jpeg")
	}
	return nil
}

// WriteJPEG encodes image into file, creating parent directories
func WriteJPEG(path string, img image.Image, quality int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "can't create directory for '%s'", path)
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "can't create '%s'", path)
	}
	if err := EncodeJPEG(file, img, quality); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	return errors.Wrapf(file.Close(), "can't close '%s'", path)
}
