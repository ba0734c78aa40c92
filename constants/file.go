package constants

import "strings"

// MIMEPDF is the mime type that selects the document extraction path.
const MIMEPDF = "application/pdf"

// AllowedExtensions holds the default allowed file extensions for receipts ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MIMEForExt returns the mime type for an allowed receipt extension, or "" when
// the extension is not supported.
func MIMEForExt(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return MIMEPDF
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}

// IsPDF reports whether mime selects the document (PDF) extraction path.
func IsPDF(mime string) bool {
	return strings.EqualFold(strings.TrimSpace(mime), MIMEPDF)
}
