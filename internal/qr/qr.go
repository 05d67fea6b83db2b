package qr

import (
	"encoding/base64"

	"github.com/cockroachdb/errors"
	"github.com/skip2/go-qrcode"
)

const dataURLPrefix = "data:image/png;base64,"

// Renderer encodes tokens as PNG QR codes wrapped in a data URL.
type Renderer struct {
	size  int
	level qrcode.RecoveryLevel
}

func NewRenderer(size int) *Renderer {
	if size <= 0 {
		size = 256
	}
	return &Renderer{size: size, level: qrcode.Medium}
}

func (r *Renderer) Render(content string) (string, error) {
	png, err := qrcode.Encode(content, r.level, r.size)
	if err != nil {
		return "", errors.Wrap(err, "encode qr")
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}
