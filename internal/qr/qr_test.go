package qr

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func TestRenderer_Render(t *testing.T) {
	out, err := NewRenderer(128).Render("eyJkYXRhIjp7fX0=")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, dataURLPrefix) {
		t.Fatalf("expected png data url, got %.40s", out)
	}
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(out, dataURLPrefix))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("expected png signature")
	}
}
