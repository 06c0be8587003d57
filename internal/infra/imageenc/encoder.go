package imageenc

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"io"

	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	_ "golang.org/x/image/webp" // register WEBP decoder

	"github.com/bryanwahyu/mushroom-id/internal/domain/mushroom"
)

// Encoder turns an uploaded image into a transport payload.
type Encoder struct{}

func New() *Encoder {
	return &Encoder{}
}

// Encode reads src completely and base64-encodes it. mediaType is copied as is.
func (e *Encoder) Encode(ctx context.Context, src io.Reader, mediaType string) (mushroom.ImagePayload, error) {
	const op = "imageenc.Encode"

	if src == nil {
		return mushroom.ImagePayload{}, mushroom.ReadFailure(op, errors.New("no image source"))
	}
	if err := ctx.Err(); err != nil {
		return mushroom.ImagePayload{}, mushroom.ReadFailure(op, err)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return mushroom.ImagePayload{}, mushroom.ReadFailure(op, err)
	}
	if len(data) == 0 {
		return mushroom.ImagePayload{}, mushroom.ReadFailure(op, errors.New("image is empty"))
	}

	return mushroom.ImagePayload{
		Data:      base64.StdEncoding.EncodeToString(data),
		MediaType: mediaType,
	}, nil
}

var signatures = []struct {
	mediaType string
	magic     []byte
}{
	{"image/png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{"image/jpeg", []byte{0xFF, 0xD8, 0xFF}},
	{"image/gif", []byte("GIF8")},
	{"image/webp", []byte("RIFF")}, // followed by "WEBP" at offset 8
}

// DetectMediaType identifies PNG, JPEG, GIF and WEBP content from its leading bytes.
func DetectMediaType(head []byte) (string, bool) {
	for _, s := range signatures {
		if !bytes.HasPrefix(head, s.magic) {
			continue
		}
		if s.mediaType == "image/webp" && (len(head) < 12 || !bytes.Equal(head[8:12], []byte("WEBP"))) {
			return "", false
		}
		return s.mediaType, true
	}
	return "", false
}

// DecodeConfig reports the format and dimensions of an encoded image without decoding pixels.
func DecodeConfig(data []byte) (image.Config, string, error) {
	return image.DecodeConfig(bytes.NewReader(data))
}
