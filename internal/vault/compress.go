package vault

import "github.com/akn300666-cpu/Evolution-v2.0/internal/chat"

// ArchiveMarker is appended to an entry whose image was stripped.
const ArchiveMarker = " [Visual Memory Archived]"

// retainedImages is how many trailing entries keep their image payload.
// Persistent stores commonly cap a record around a few MB; images
// dominate that budget, text never does.
const retainedImages = 5

// Compress strips images from all but the last retainedImages entries,
// marking each stripped entry's text. Same length and order as the
// input; entries past the cutoff are returned untouched.
func Compress(messages []chat.Message) []chat.Message {
	cutoff := len(messages) - retainedImages
	if cutoff < 0 {
		cutoff = 0
	}

	out := make([]chat.Message, len(messages))
	for i, msg := range messages {
		if i < cutoff && msg.Image != "" {
			msg.Image = ""
			msg.Text += ArchiveMarker
		}
		out[i] = msg
	}
	return out
}

// StripImages removes every image payload. It is the emergency fallback
// when even a compressed record overflows the store: full text history
// survives, visuals do not.
func StripImages(messages []chat.Message) []chat.Message {
	out := make([]chat.Message, len(messages))
	for i, msg := range messages {
		msg.Image = ""
		out[i] = msg
	}
	return out
}
