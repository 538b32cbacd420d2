package config

// RecordPreset is a named group of content types and URL extensions that are not recorded.
//
// A content type ending in "/*" matches every subtype; any other entry matches a Content-Type header
// that contains it. An extension matches the end of the URL path.
type RecordPreset struct {
	ContentTypes []string
	Extensions   []string
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".bmp"} //nolint:gochecknoglobals

var fontExtensions = []string{".woff", ".woff2", ".ttf", ".otf", ".eot"} //nolint:gochecknoglobals

// RecordPresets are the values allowed in Record.Preset.
var RecordPresets = map[string]RecordPreset{ //nolint:gochecknoglobals
	"images": {
		ContentTypes: []string{"image/*"},
		Extensions:   imageExtensions,
	},
	"fonts": {
		ContentTypes: []string{"font/*"},
		Extensions:   fontExtensions,
	},
	"web_assets": {
		ContentTypes: []string{"image/*", "font/*", "text/css", "application/javascript", "application/x-javascript"},
		Extensions: concat(
			[]string{".js", ".mjs", ".cjs", ".css", ".scss", ".sass"},
			imageExtensions,
			fontExtensions,
		),
	},
	"static": {
		ContentTypes: []string{
			"image/*", "font/*", "video/*", "audio/*", "text/css",
			"application/javascript", "application/x-javascript", "application/octet-stream",
		},
		Extensions: concat(
			[]string{".js", ".mjs", ".cjs", ".jsx", ".css", ".scss", ".sass", ".less"},
			imageExtensions,
			fontExtensions,
			[]string{".mp4", ".webm", ".mp3", ".wav", ".ogg", ".zip", ".tar", ".gz", ".7z"},
		),
	},
}

func concat(lists ...[]string) []string {
	var ret []string
	for _, l := range lists {
		ret = append(ret, l...)
	}
	return ret
}
