package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
)

// SimulatedConfig configures the synthetic capture actuator.
type SimulatedConfig struct {
	Dir   string
	Delay time.Duration
}

// Simulated renders a Code 128 image per side so the decode and link path can
// run end to end without hardware.
type Simulated struct {
	cfg SimulatedConfig

	mu        sync.Mutex
	seq       int
	blankNext [2]bool
}

// NewSimulated constructs a synthetic actuator.
func NewSimulated(cfg SimulatedConfig) *Simulated {
	if cfg.Dir == "" {
		cfg.Dir = os.TempDir()
	}
	return &Simulated{cfg: cfg}
}

// BlankNext makes the next capture write an image without a code for the given sides.
func (s *Simulated) BlankNext(left, right bool) {
	s.mu.Lock()
	s.blankNext = [2]bool{left, right}
	s.mu.Unlock()
}

// Capture waits for the configured delay and writes one image per side.
func (s *Simulated) Capture(ctx context.Context, board Board) (Result, error) {
	if s.cfg.Delay > 0 {
		timer := time.NewTimer(s.cfg.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	blank := s.blankNext
	s.blankNext = [2]bool{}
	s.mu.Unlock()

	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create capture dir: %w", err)
	}

	var result Result
	left, err := s.writeSide(board.Name, "left", seq, blank[0])
	if err != nil {
		return result, err
	}
	result.Left = left
	if board.DoubleSided {
		right, err := s.writeSide(board.Name, "right", seq, blank[1])
		if err != nil {
			return result, err
		}
		result.Right = right
	}
	return result, nil
}

// SimulatedCode returns the code a simulated capture embeds for a side.
func SimulatedCode(board, side string, seq int) string {
	tag := strings.ToUpper(strings.ReplaceAll(board, "_", ""))
	return fmt.Sprintf("SIM%s%s%05d", tag, strings.ToUpper(side[:1]), seq)
}

func (s *Simulated) writeSide(board, side string, seq int, blank bool) (string, error) {
	var img image.Image
	if blank {
		img = whiteImage(640, 240)
	} else {
		rendered, err := renderCode128(SimulatedCode(board, side, seq), 640, 240)
		if err != nil {
			return "", fmt.Errorf("render %s code: %w", side, err)
		}
		img = rendered
	}
	path := filepath.Join(s.cfg.Dir, fmt.Sprintf("%s_%s.jpg", board, side))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s image: %w", side, err)
	}
	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 100}); err != nil {
		file.Close()
		return "", fmt.Errorf("encode %s image: %w", side, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close %s image: %w", side, err)
	}
	return path, nil
}

func renderCode128(contents string, width, height int) (*image.Gray, error) {
	matrix, err := oned.NewCode128Writer().Encode(contents, gozxing.BarcodeFormat_CODE_128, width, height, nil)
	if err != nil {
		return nil, err
	}
	img := image.NewGray(image.Rect(0, 0, matrix.GetWidth(), matrix.GetHeight()))
	for y := 0; y < matrix.GetHeight(); y++ {
		for x := 0; x < matrix.GetWidth(); x++ {
			if matrix.Get(x, y) {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img, nil
}

func whiteImage(width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}
