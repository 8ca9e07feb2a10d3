package media

import (
	"strconv"
	"strings"
)

// Format selects what the extractor should produce.
type Format string

const (
	FormatVideo Format = "video"
	FormatAudio Format = "audio"
)

// ParseFormat maps the wire value sent by clients to a Format.
// The front-end historically sends "mp4" and "mp3", both spellings are accepted.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "video", "mp4":
		return FormatVideo, nil
	case "audio", "mp3":
		return FormatAudio, nil
	}

	return "", &ValidationError{Field: "format", Reason: "must be one of video, audio"}
}

// DownloadRequest is built per HTTP call and never persisted.
type DownloadRequest struct {
	URL     string
	Format  Format
	Quality string
}

// MaxHeight returns the height cap encoded in Quality ("720", "720p").
// ok is false for "best", "worst", empty or unparsable values.
func (r DownloadRequest) MaxHeight() (int, bool) {
	q := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(r.Quality)), "p")

	h, err := strconv.Atoi(q)
	if err != nil || h <= 0 {
		return 0, false
	}

	return h, true
}

// Info is the metadata returned by /info and collected during downloads.
type Info struct {
	Title       string        `json:"title"`
	Duration    float64       `json:"duration"`
	Uploader    string        `json:"uploader"`
	Thumbnail   string        `json:"thumbnail"`
	ViewCount   *int64        `json:"view_count,omitempty"`
	UploadDate  string        `json:"upload_date,omitempty"`
	Description string        `json:"description,omitempty"`
	Formats     []VideoFormat `json:"formats,omitempty"`
	Ext         string        `json:"-"`
}

// VideoFormat is a selectable quality level.
type VideoFormat struct {
	FormatID string `json:"format_id"`
	Quality  string `json:"quality"`
	Ext      string `json:"ext"`
	Filesize int64  `json:"filesize,omitempty"`
}
