package shared

const (
	ClientName = "Lectern"
	UserAgent  = "Lectern/1.0 <github.com/pinesap/lectern>"
)

// SupportedMimeTypes is advertised when opening a playback session so
// the server never transcodes into a format the player cannot open.
var SupportedMimeTypes = []string{
	"audio/flac",
	"audio/mpeg",
	"audio/mp4",
	"audio/ogg",
	"audio/aac",
	"audio/webm",
}
