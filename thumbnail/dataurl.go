package thumbnail

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// decodeDataURL splits a "data:<mime>;base64,<payload>" string into its
// MIME type and decoded bytes.
func decodeDataURL(dataURL string) (mimeType string, payload []byte, err error) {
	const prefix = "data:"
	if !strings.HasPrefix(dataURL, prefix) {
		return "", nil, fmt.Errorf("not a data URL")
	}
	rest := dataURL[len(prefix):]

	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", nil, fmt.Errorf("malformed data URL: missing comma")
	}
	header, encoded := rest[:comma], rest[comma+1:]

	parts := strings.Split(header, ";")
	mimeType = parts[0]
	isBase64 := false
	for _, p := range parts[1:] {
		if p == "base64" {
			isBase64 = true
		}
	}
	if !isBase64 {
		return "", nil, fmt.Errorf("data URL must be base64 encoded")
	}

	payload, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	return mimeType, payload, nil
}

// encodeDataURL renders bytes back into a base64 data URL of the given
// MIME type.
func encodeDataURL(mimeType string, payload []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(payload))
}
