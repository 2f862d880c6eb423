package output

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// DefaultJPEGQuality matches what captured frames have always been written with.
const DefaultJPEGQuality = 90

// Encoder turns one captured frame into file bytes.
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
	// Ext is the file extension without the dot.
	Ext() string
}

type JPEGEncoder struct {
	Quality int
}

func (e JPEGEncoder) Encode(w io.Writer, img image.Image) error {
	q := e.Quality
	if q <= 0 {
		q = DefaultJPEGQuality
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
}

func (JPEGEncoder) Ext() string { return "jpg" }

type PNGEncoder struct{}

func (PNGEncoder) Encode(w io.Writer, img image.Image) error { return png.Encode(w, img) }
func (PNGEncoder) Ext() string                               { return "png" }

type BMPEncoder struct{}

func (BMPEncoder) Encode(w io.Writer, img image.Image) error { return bmp.Encode(w, img) }
func (BMPEncoder) Ext() string                               { return "bmp" }

type TIFFEncoder struct{}

func (TIFFEncoder) Encode(w io.Writer, img image.Image) error {
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
}

func (TIFFEncoder) Ext() string { return "tiff" }

// EncoderFor maps a format name (jpg, jpeg, png, bmp, tiff) to an encoder.
func EncoderFor(format string, quality int) (Encoder, error) {
	switch strings.ToLower(format) {
	case "jpg", "jpeg", "":
		return JPEGEncoder{Quality: quality}, nil
	case "png":
		return PNGEncoder{}, nil
	case "bmp":
		return BMPEncoder{}, nil
	case "tiff", "tif":
		return TIFFEncoder{}, nil
	}
	return nil, fmt.Errorf("output: unknown image format %q", format)
}
