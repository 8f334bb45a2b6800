package loader

import (
	"bytes"
	"unicode/utf8"

	"github.com/wizzardx/davinci/pkg/schema"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// detectEncoding names the encoding announced by a byte-order mark, or
// "utf-8" when there is none.
func detectEncoding(data []byte) string {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return "utf-8-bom"
	case bytes.HasPrefix(data, bomUTF16LE):
		return "utf-16le"
	case bytes.HasPrefix(data, bomUTF16BE):
		return "utf-16be"
	}
	return "utf-8"
}

// toUTF8 strips any byte-order mark and transcodes UTF-16 input to UTF-8.
// Input without a BOM must already be valid UTF-8.
func toUTF8(data []byte) ([]byte, error) {
	enc := detectEncoding(data)
	if enc == "utf-8" {
		if !utf8.Valid(data) {
			return nil, schema.NewError(schema.ErrCodeDecode, "document is not valid UTF-8 and carries no byte-order mark")
		}
		return data, nil
	}

	// BOMOverride consumes the mark and switches to the decoder it names.
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDecode, "transcode %s document: %s", enc, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"encoding": enc})
	}
	return out, nil
}
