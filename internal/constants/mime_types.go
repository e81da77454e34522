package constants

// MimeTypes maps file extensions to their corresponding MIME types
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",

	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",

	".pdf": "application/pdf",
	".zip": "application/zip",
	".txt": "text/plain",

	".bin": "application/octet-stream",
}

// DefaultMimeType is the fallback MIME type for unknown file extensions
const DefaultMimeType = "application/octet-stream"

// FileTypeExtensions maps Telegram attachment kinds to the stored object extension
var FileTypeExtensions = map[string]string{
	"photo":    "jpg",
	"video":    "mp4",
	"document": "pdf",
}

// DefaultExtension is used for attachment kinds without a mapping
const DefaultExtension = "bin"

// MimeTypeForExtension returns the MIME type registered for ext (without dot).
func MimeTypeForExtension(ext string) string {
	if mt, ok := MimeTypes["."+ext]; ok {
		return mt
	}
	return DefaultMimeType
}
