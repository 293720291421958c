package task

// Format identifies an output format of the external tool.
type Format string

// The supported output formats, ordered lossless to most compatible.
const (
	FormatFLAC Format = "flac"
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
)

// SupportedFormats is the fixed, ordered format catalog shared by the probe
// and fetch paths.
var SupportedFormats = []Format{FormatFLAC, FormatWAV, FormatMP3}

// FallbackOrder returns the candidate formats for a fetch, starting at the
// preferred format and wrapping around the catalog so every supported format
// appears exactly once. An unrecognized preference yields the catalog in its
// declared order.
func FallbackOrder(preferred Format) []Format {
	start := -1
	for i, f := range SupportedFormats {
		if f == preferred {
			start = i
			break
		}
	}
	if start < 0 {
		return append([]Format(nil), SupportedFormats...)
	}

	out := make([]Format, 0, len(SupportedFormats))
	out = append(out, SupportedFormats[start:]...)
	out = append(out, SupportedFormats[:start]...)
	return out
}
