package whatsapp

import "strings"

// mimeExtensions covers the media types the platform actually delivers.
var mimeExtensions = map[string]string{
	"image/jpeg":         ".jpg",
	"image/png":          ".png",
	"image/webp":         ".webp",
	"audio/aac":          ".aac",
	"audio/mp4":          ".m4a",
	"audio/mpeg":         ".mp3",
	"audio/amr":          ".amr",
	"audio/ogg":          ".ogg",
	"video/mp4":          ".mp4",
	"video/3gpp":         ".3gp",
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"text/plain": ".txt",
}

// ExtensionFor maps a MIME type to a file extension, ".bin" when unknown.
// Parameters after a semicolon (codecs, charset) are ignored.
func ExtensionFor(mimeType string) string {
	base := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	if ext, ok := mimeExtensions[base]; ok {
		return ext
	}
	return ".bin"
}
