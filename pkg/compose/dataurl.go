package compose

import "encoding/base64"

// DataURL wraps PNG bytes as a base64 data URL suitable for direct use in
// an <img> src attribute.
func DataURL(pngData []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
}
