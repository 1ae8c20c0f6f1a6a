// Package decode turns captured images into serial codes.
//
// A Reader owns one engine instance, built lazily on first use and reused for
// every later call. Decode never returns an error: a missing code, an unreadable
// image, an engine fault, and a panic inside the engine all read as "no code"
// and are logged. Three engines are available:
//
//   - zxing: in-process DataMatrix, QR, and Code 128 readers
//   - server: a remote decode server reached over a TCP JSON protocol, with
//     images copied onto a shared mount the server can read
//   - tesseract: OCR of printed serials (requires the tesseract build tag)
package decode
