// Package extractor adapts the external yt-dlp tool into a typed capability:
// given a URL and format options it either leaves files in a caller-owned
// directory or fails with a classified *media.ExtractionError.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/italolelis/mediagrab/internal/logctx"
	"github.com/italolelis/mediagrab/internal/media"
)

const (
	defaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultReferer    = "https://www.google.com/"
	defaultMaxHeight  = 720
	defaultAudioKbps  = 192
	outputTemplate    = "%(title)s.%(ext)s"
	maxDescriptionLen = 500
)

var defaultHeaders = []string{
	"Accept:text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language:en-us,en;q=0.5",
}

// Extractor is the capability the rest of the service depends on.
type Extractor interface {
	// Download fetches req.URL into dir, which the caller exclusively owns.
	Download(ctx context.Context, req media.DownloadRequest, dir string) (*media.Info, error)
	// Info returns metadata without downloading.
	Info(ctx context.Context, url string) (*media.Info, error)
}

// Options tunes the transport-level hints passed to yt-dlp.
type Options struct {
	UserAgent   string
	Referer     string
	CookiesFile string
}

// YtDLP drives the yt-dlp command line tool.
type YtDLP struct {
	runner Runner
	opts   Options
}

var _ Extractor = (*YtDLP)(nil)

// NewYtDLP creates an extractor that executes commands through runner.
func NewYtDLP(runner Runner, opts Options) *YtDLP {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	if opts.Referer == "" {
		opts.Referer = defaultReferer
	}

	return &YtDLP{runner: runner, opts: opts}
}

// Download implements Extractor.
func (y *YtDLP) Download(ctx context.Context, req media.DownloadRequest, dir string) (*media.Info, error) {
	logger := logctx.LoggerFromContext(ctx).With("format", req.Format)

	args := y.downloadArgs(req, dir)

	logger.Debug("running extractor", "args", len(args))

	stdout, err := y.runner.Run(ctx, dir, args)
	if err != nil {
		return nil, classifyErr(ctx, err)
	}

	info, err := parseInfo([]byte(stdout))
	if err != nil {
		// The file may still be on disk; the caller falls back to the file name.
		logger.Warn("failed to parse extractor output", "err", err)

		return &media.Info{}, nil
	}

	return info, nil
}

// Info implements Extractor.
func (y *YtDLP) Info(ctx context.Context, url string) (*media.Info, error) {
	args := append(y.baseArgs(), "--skip-download", "--dump-single-json", "--", url)

	stdout, err := y.runner.Run(ctx, "", args)
	if err != nil {
		return nil, classifyErr(ctx, err)
	}

	info, err := parseInfo([]byte(stdout))
	if err != nil {
		return nil, &media.ExtractionError{
			Kind:    media.KindFailure,
			Message: "could not parse media information",
			Err:     err,
		}
	}

	return info, nil
}

func (y *YtDLP) baseArgs() []string {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"--user-agent", y.opts.UserAgent,
		"--referer", y.opts.Referer,
	}

	for _, h := range defaultHeaders {
		args = append(args, "--add-headers", h)
	}

	if y.opts.CookiesFile != "" {
		args = append(args, "--cookies", y.opts.CookiesFile)
	}

	return args
}

func (y *YtDLP) downloadArgs(req media.DownloadRequest, dir string) []string {
	args := y.baseArgs()
	args = append(args, "-o", filepath.Join(dir, outputTemplate))

	switch req.Format {
	case media.FormatAudio:
		args = append(args,
			"-f", "bestaudio/best",
			"-x",
			"--audio-format", "mp3",
			"--audio-quality", audioQuality(req),
		)
	default:
		args = append(args,
			"-f", videoSelector(req),
			"--extractor-args", "youtube:skip=dash,hls",
			"--merge-output-format", "mp4",
		)
	}

	return append(args, "--no-simulate", "--dump-single-json", "--", req.URL)
}

func videoSelector(req media.DownloadRequest) string {
	switch req.Quality {
	case "best":
		return "best"
	case "worst":
		return "worst"
	}

	h, ok := req.MaxHeight()
	if !ok {
		h = defaultMaxHeight
	}

	return fmt.Sprintf("best[height<=%d]/best", h)
}

// audioQuality reads a bitrate such as "128", "128k" or "128kbps" from the
// requested quality. Values outside 64-320 fall back to the default.
func audioQuality(req media.DownloadRequest) string {
	q := strings.ToLower(strings.TrimSpace(req.Quality))
	q = strings.TrimSuffix(strings.TrimSuffix(q, "bps"), "k")

	kbps, err := strconv.Atoi(q)
	if err != nil || kbps < 64 || kbps > 320 {
		kbps = defaultAudioKbps
	}

	return strconv.Itoa(kbps) + "K"
}

type rawFormat struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	Height         *float64 `json:"height"`
	VCodec         string   `json:"vcodec"`
	Filesize       *float64 `json:"filesize"`
	FilesizeApprox *float64 `json:"filesize_approx"`
}

type rawInfo struct {
	Title       string      `json:"title"`
	Duration    *float64    `json:"duration"`
	Uploader    string      `json:"uploader"`
	Channel     string      `json:"channel"`
	Thumbnail   string      `json:"thumbnail"`
	ViewCount   *float64    `json:"view_count"`
	UploadDate  string      `json:"upload_date"`
	Description string      `json:"description"`
	Ext         string      `json:"ext"`
	Formats     []rawFormat `json:"formats"`
}

func parseInfo(data []byte) (*media.Info, error) {
	var raw rawInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode info json: %w", err)
	}

	info := &media.Info{
		Title:       raw.Title,
		Uploader:    raw.Uploader,
		Thumbnail:   raw.Thumbnail,
		UploadDate:  raw.UploadDate,
		Description: media.Truncate(raw.Description, maxDescriptionLen),
		Ext:         raw.Ext,
		Formats:     videoFormats(raw.Formats),
	}

	if info.Title == "" {
		info.Title = "Unknown"
	}

	if info.Uploader == "" {
		info.Uploader = raw.Channel
	}

	if info.Uploader == "" {
		info.Uploader = "Unknown"
	}

	if raw.Duration != nil {
		info.Duration = *raw.Duration
	}

	if raw.ViewCount != nil {
		vc := int64(*raw.ViewCount)
		info.ViewCount = &vc
	}

	return info, nil
}

// videoFormats keeps one entry per height, preferring the largest known size, tallest first.
func videoFormats(raw []rawFormat) []media.VideoFormat {
	byHeight := make(map[int]media.VideoFormat)

	for _, f := range raw {
		if f.Height == nil || *f.Height <= 0 || f.VCodec == "none" {
			continue
		}

		h := int(*f.Height)

		var size int64
		switch {
		case f.Filesize != nil:
			size = int64(*f.Filesize)
		case f.FilesizeApprox != nil:
			size = int64(*f.FilesizeApprox)
		}

		if cur, ok := byHeight[h]; ok && cur.Filesize >= size {
			continue
		}

		byHeight[h] = media.VideoFormat{
			FormatID: f.FormatID,
			Quality:  strconv.Itoa(h) + "p",
			Ext:      f.Ext,
			Filesize: size,
		}
	}

	heights := make([]int, 0, len(byHeight))
	for h := range byHeight {
		heights = append(heights, h)
	}

	sort.Sort(sort.Reverse(sort.IntSlice(heights)))

	out := make([]media.VideoFormat, 0, len(heights))
	for _, h := range heights {
		out = append(out, byHeight[h])
	}

	return out
}
