package decode

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

type zxingEngine struct {
	mu      sync.Mutex
	readers []gozxing.Reader
	hints   map[gozxing.DecodeHintType]any
}

// Readers run in order; the first hit wins. Board labels are mostly
// DataMatrix so it goes first.
func newZXingEngine(tryHarder bool) *zxingEngine {
	hints := map[gozxing.DecodeHintType]any{}
	if tryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	return &zxingEngine{
		readers: []gozxing.Reader{
			datamatrix.NewDataMatrixReader(),
			qrcode.NewQRCodeReader(),
			oned.NewCode128Reader(),
		},
		hints: hints,
	}
}

func (e *zxingEngine) Scan(ctx context.Context, path string) (string, error) {
	img, err := loadImage(path)
	if err != nil {
		return "", err
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("binarize %s: %w", path, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, reader := range e.readers {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		result, err := reader.Decode(bmp, e.hints)
		reader.Reset()
		if err == nil && result != nil && result.GetText() != "" {
			return result.GetText(), nil
		}
	}
	return "", ErrNoCode
}

func (e *zxingEngine) Close() error { return nil }

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return img, nil
}
