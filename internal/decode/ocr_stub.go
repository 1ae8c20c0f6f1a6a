//go:build !tesseract

package decode

import "errors"

func newOCREngine() (Engine, error) {
	return nil, errors.New("built without OCR support; rebuild with -tags tesseract")
}
