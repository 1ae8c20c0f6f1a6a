//go:build tesseract

package decode

import (
	"context"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

const ocrWhitelist = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ-"

// ocrEngine reads printed serials for labels without a machine-readable code.
type ocrEngine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

func newOCREngine() (Engine, error) {
	client := gosseract.NewClient()
	if err := client.SetWhitelist(ocrWhitelist); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, err
	}
	return &ocrEngine{client: client}, nil
}

func (e *ocrEngine) Scan(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.client.SetImage(path); err != nil {
		return "", err
	}
	text, err := e.client.Text()
	if err != nil {
		return "", err
	}
	if serial := firstSerial(text); serial != "" {
		return serial, nil
	}
	return "", ErrNoCode
}

func (e *ocrEngine) Close() error {
	return e.client.Close()
}

// firstSerial picks the first token long enough to be a serial.
func firstSerial(text string) string {
	for _, field := range strings.Fields(text) {
		if len(field) >= 6 {
			return field
		}
	}
	return ""
}
