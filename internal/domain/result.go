package domain

// ResultKind tells how a request ended.
type ResultKind string

const (
	// ResultPrimary means the primary provider answered.
	ResultPrimary ResultKind = "primary"

	// ResultFallback means the primary was exhausted and the secondary answered.
	ResultFallback ResultKind = "fallback"

	// ResultNoUID means an image request carried no image marker.
	ResultNoUID ResultKind = "no_uid"

	// ResultImageNotFound means the marker named an image that is not stored.
	ResultImageNotFound ResultKind = "image_not_found"

	// ResultExhausted means both providers failed.
	ResultExhausted ResultKind = "exhausted"
)

// Fixed texts returned to callers for the non-provider outcomes.
const (
	TextNoUID         = "No valid UID found."
	TextImageNotFound = "Image not found."
	TextExhausted     = "I'm sorry, I couldn't process that due to an error in both services."
)

// Result is the outcome of a single ask. Text is always set.
type Result struct {
	Kind ResultKind `json:"kind"`
	Text string     `json:"text"`
}

// OK reports whether one of the providers produced the text.
func (r Result) OK() bool {
	return r.Kind == ResultPrimary || r.Kind == ResultFallback
}

func (r Result) String() string {
	return r.Text
}

// NoUIDResult is returned for image requests without a marker.
func NoUIDResult() Result {
	return Result{Kind: ResultNoUID, Text: TextNoUID}
}

// ImageNotFoundResult is returned when the marked image is missing on disk.
func ImageNotFoundResult() Result {
	return Result{Kind: ResultImageNotFound, Text: TextImageNotFound}
}

// ExhaustedResult is returned after all attempts and the fallback failed.
func ExhaustedResult() Result {
	return Result{Kind: ResultExhausted, Text: TextExhausted}
}
