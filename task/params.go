package task

import (
	"fmt"
	"regexp"
)

type ProcessType string

const (
	ProcessConvert  ProcessType = "convert"
	ProcessCompress ProcessType = "compress"
	ProcessTrim     ProcessType = "trim"
)

const (
	DefaultConvertFormat = "mp4"
	DefaultQuality       = "medium"
	DefaultTrimStart     = "00:00:00"
)

// Params carries the operation-specific arguments of a process request.
// Exactly one concrete variant exists per supported ProcessType.
type Params interface {
	Operation() ProcessType
	Validate() error
}

type ConvertParams struct {
	Format string
}

type CompressParams struct {
	Quality string
}

// TrimParams bounds are ffmpeg timestamps. An empty EndTime trims to the end.
type TrimParams struct {
	StartTime string
	EndTime   string
}

var formatPattern = regexp.MustCompile(`^[a-z0-9]{1,10}$`)

func (ConvertParams) Operation() ProcessType { return ProcessConvert }

// Validate rejects formats that cannot safely become a file extension.
func (p ConvertParams) Validate() error {
	if p.Format == "" {
		return nil
	}
	if !formatPattern.MatchString(p.Format) {
		return fmt.Errorf("%w: output format %q", ErrInvalidParams, p.Format)
	}
	return nil
}

// OutputFormat returns the requested container, defaulting to mp4.
func (p ConvertParams) OutputFormat() string {
	if p.Format == "" {
		return DefaultConvertFormat
	}
	return p.Format
}

func (CompressParams) Operation() ProcessType { return ProcessCompress }

func (CompressParams) Validate() error { return nil }

// CRF maps the quality tier to ffmpeg's constant rate factor.
// An unspecified tier is treated as medium; unknown tiers get the high-quality factor.
func (p CompressParams) CRF() int {
	quality := p.Quality
	if quality == "" {
		quality = DefaultQuality
	}
	switch quality {
	case "low":
		return 32
	case "medium":
		return 28
	default:
		return 23
	}
}

func (TrimParams) Operation() ProcessType { return ProcessTrim }

func (TrimParams) Validate() error { return nil }

// Start returns the lower bound, defaulting to the beginning of the input.
func (p TrimParams) Start() string {
	if p.StartTime == "" {
		return DefaultTrimStart
	}
	return p.StartTime
}

// NewParams builds the variant for op from loosely typed request fields.
// Unsupported operations yield nil params and no error: the lifecycle manager
// records them as task failures.
func NewParams(op ProcessType, format, quality, start, end string) (Params, error) {
	var p Params
	switch op {
	case ProcessConvert:
		p = ConvertParams{Format: format}
	case ProcessCompress:
		p = CompressParams{Quality: quality}
	case ProcessTrim:
		p = TrimParams{StartTime: start, EndTime: end}
	default:
		return nil, nil
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
