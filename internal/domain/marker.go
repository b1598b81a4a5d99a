package domain

import "regexp"

// imageUIDPattern is the one grammar for image identifiers embedded in chat text.
var imageUIDPattern = regexp.MustCompile(`Image UID: (\S+)`)

const imageUIDPrefix = "\n> Image UID: "

// ParseImageUID extracts the identifier from the first marker found in text.
func ParseImageUID(text string) (string, bool) {
	match := imageUIDPattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// FormatImageUID renders the marker that is appended to replies so the identifier
// survives into later turns of the same conversation.
func FormatImageUID(uid string) string {
	return imageUIDPrefix + uid
}

// FindImageUID scans the messages in order and returns the identifier of the first marker.
func FindImageUID(messages []Message) (string, bool) {
	for _, msg := range messages {
		if uid, ok := ParseImageUID(msg.Content); ok {
			return uid, true
		}
	}
	return "", false
}
