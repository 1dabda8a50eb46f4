package model

// Confidence flags adapters may raise on a ParseResult.
const (
	FlagTranscript = "transcript"
	FlagComments   = "comments"
	FlagThread     = "thread"
	FlagEngagement = "engagement"
	FlagProxy      = "jina"
	FlagNativeJSON = "native-json"
)

// ParseResult is the transient output of one adapter attempt. It is consumed
// immediately to build an Item or discarded.
type ParseResult struct {
	URL             string
	Title           string
	Content         string
	Author          string
	Excerpt         string
	Tags            []string
	Success         bool
	Error           string
	MediaType       MediaType
	SourceType      SourceType
	Extra           Extra
	ConfidenceFlags []string
}

// Failure builds an unsuccessful result.
func Failure(url, msg string) *ParseResult {
	return &ParseResult{URL: url, Error: msg}
}
