package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"forum/models"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// StoreCropped crops the uploaded image to crop (clamped to the image
// bounds), scales the result to fit within targetSize x targetSize and
// stores it. Every failure is a ProcessingError.
func (s *Store) StoreCropped(ctx context.Context, data []byte, originalName string, crop models.CropRect, targetSize int) (string, error) {
	ext, err := s.checkUpload(data, originalName)
	if err != nil {
		return "", &models.ProcessingError{Step: "upload", Err: err}
	}
	if crop.Width <= 0 || crop.Height <= 0 {
		return "", &models.ProcessingError{Step: "crop", Err: fmt.Errorf("crop size %dx%d is not positive", crop.Width, crop.Height)}
	}

	tmp, err := os.CreateTemp("", "avatar-*."+ext)
	if err != nil {
		return "", &models.ProcessingError{Step: "upload", Err: err}
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			s.logger.Error("Failed to remove temporary avatar file", "path", tmpPath, "error", err)
		}
	}()
	_, werr := tmp.Write(data)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return "", &models.ProcessingError{Step: "upload", Err: werr}
	}

	img, err := imaging.Open(tmpPath, imaging.AutoOrientation(true))
	if err != nil {
		return "", &models.ProcessingError{Step: "decode", Err: err}
	}

	bounds := img.Bounds()
	rect := crop.Rectangle().Add(bounds.Min).Intersect(bounds)
	if rect.Empty() {
		return "", &models.ProcessingError{Step: "crop", Err: errors.New("crop rectangle lies outside the image")}
	}
	var out image.Image = imaging.Crop(img, rect)
	out = imaging.Fit(out, targetSize, targetSize, imaging.Lanczos)

	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return "", &models.ProcessingError{Step: "encode", Err: err}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, format, imaging.JPEGQuality(90)); err != nil {
		return "", &models.ProcessingError{Step: "encode", Err: err}
	}

	name := uniqueName(originalName)
	if err := s.backend.Put(ctx, name, buf.Bytes(), contentType(ext)); err != nil {
		s.logger.Error("Failed to write avatar", "name", name, "error", err)
		return "", &models.ProcessingError{Step: "store", Err: err}
	}
	return s.prefix + "/" + name, nil
}
