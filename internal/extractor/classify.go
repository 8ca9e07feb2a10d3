package extractor

import (
	"context"
	"errors"
	"strings"

	"github.com/italolelis/mediagrab/internal/media"
)

const maxMessageLen = 300

// classifications is matched in order against the lower-cased tool output.
// yt-dlp exposes no structured error codes, so this table is best-effort and
// is the only place that knows about its wording.
var classifications = []struct {
	kind    media.ErrorKind
	needles []string
}{
	{media.KindChallenge, []string{
		"sign in to confirm",
		"not a bot",
		"captcha",
		"http error 429",
		"too many requests",
	}},
	{media.KindForbidden, []string{
		"private video",
		"is private",
		"members-only",
		"members only",
		"join this channel",
	}},
	{media.KindNotFound, []string{
		"video unavailable",
		"has been removed",
		"no longer available",
		"video is not available",
		"content is not available",
		"content isn't available",
		"does not exist",
		"http error 404",
	}},
}

// Classify maps raw tool output to an ErrorKind.
func Classify(msg string) media.ErrorKind {
	lower := strings.ToLower(msg)

	for _, c := range classifications {
		for _, n := range c.needles {
			if strings.Contains(lower, n) {
				return c.kind
			}
		}
	}

	return media.KindFailure
}

func classifyErr(ctx context.Context, err error) *media.ExtractionError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &media.ExtractionError{Kind: media.KindTimeout, Message: "extraction timed out", Err: err}
	}

	msg := err.Error()

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.Stderr != "" {
		msg = cmdErr.Stderr
	}

	return &media.ExtractionError{
		Kind:    Classify(msg),
		Message: media.Truncate(lastErrorLine(msg), maxMessageLen),
		Err:     err,
	}
}

// lastErrorLine picks the most relevant line of multi-line tool output.
func lastErrorLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")

	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "ERROR:") {
			return strings.TrimSpace(lines[i])
		}
	}

	return strings.TrimSpace(lines[len(lines)-1])
}
