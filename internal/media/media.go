// Package media turns uploaded or pasted image bytes into the
// self-contained data URL payload stored in a question's image fields.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImageSize bounds a single image payload before encoding.
const MaxImageSize = 10 << 20

var (
	// ErrNotImage is returned when the content is not an image.
	ErrNotImage = errors.New("not an image")
	// ErrNoClipboardImage is returned when a paste carries no image.
	ErrNoClipboardImage = errors.New("no image found in clipboard")
	// ErrTooLarge is returned when the content exceeds MaxImageSize.
	ErrTooLarge = errors.New("image too large")
)

// Encode sniffs data and returns it as a data URL. Non-image content is
// rejected with ErrNotImage.
func Encode(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrNotImage
	}
	if len(data) > MaxImageSize {
		return "", ErrTooLarge
	}
	mime := mimetype.Detect(data).String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// FromReader reads at most MaxImageSize bytes from r and encodes them.
func FromReader(r io.Reader) (string, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if n > MaxImageSize {
		return "", ErrTooLarge
	}
	return Encode(buf.Bytes())
}

// FromClipboard validates a data URL read from the browser clipboard and
// re-encodes it so the stored MIME type is the sniffed one.
func FromClipboard(dataURL string) (string, error) {
	dataURL = strings.TrimSpace(dataURL)
	if dataURL == "" {
		return "", ErrNoClipboardImage
	}
	_, data, err := Decode(dataURL)
	if err != nil {
		return "", ErrNoClipboardImage
	}
	payload, err := Encode(data)
	if errors.Is(err, ErrNotImage) {
		return "", ErrNoClipboardImage
	}
	return payload, err
}

// Decode splits a base64 data URL into its declared MIME type and bytes.
func Decode(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, errors.New("not a data URL")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("malformed data URL")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, errors.New("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL: %w", err)
	}
	return mime, data, nil
}
