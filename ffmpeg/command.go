package ffmpeg

import (
	"fmt"
	"path/filepath"
	"strconv"

	"mediaproc/task"
)

// CompressPreset is the encoding-speed preset used for every quality tier.
const CompressPreset = "medium"

// Command is a fully resolved ffmpeg invocation, minus the binary and global args.
type Command struct {
	Args       []string
	OutputFile string
}

// BuildCommand maps an operation and its parameters onto ffmpeg arguments.
// params may be nil, in which case the operation's defaults apply.
func BuildCommand(t task.Task, op task.ProcessType, params task.Params, inputPath, outputDir string) (Command, error) {
	if params != nil && params.Operation() != op {
		return Command{}, fmt.Errorf("%w: %s parameters given for %s", task.ErrInvalidParams, params.Operation(), op)
	}

	switch op {
	case task.ProcessConvert:
		p, _ := params.(task.ConvertParams)
		if err := p.Validate(); err != nil {
			return Command{}, err
		}
		name := fmt.Sprintf("%s_output.%s", t.ID, p.OutputFormat())
		return Command{
			Args:       []string{"-y", "-i", inputPath, filepath.Join(outputDir, name)},
			OutputFile: name,
		}, nil

	case task.ProcessCompress:
		p, _ := params.(task.CompressParams)
		name := fmt.Sprintf("%s_compressed.%s", t.ID, t.Extension())
		return Command{
			Args: []string{
				"-y", "-i", inputPath,
				"-crf", strconv.Itoa(p.CRF()), "-preset", CompressPreset,
				filepath.Join(outputDir, name),
			},
			OutputFile: name,
		}, nil

	case task.ProcessTrim:
		p, _ := params.(task.TrimParams)
		name := fmt.Sprintf("%s_trimmed.%s", t.ID, t.Extension())
		args := []string{"-y", "-i", inputPath}
		if start := p.Start(); start != "" {
			args = append(args, "-ss", start)
		}
		if p.EndTime != "" {
			args = append(args, "-to", p.EndTime)
		}
		args = append(args, filepath.Join(outputDir, name))
		return Command{Args: args, OutputFile: name}, nil
	}

	return Command{}, fmt.Errorf("%w: %q", task.ErrUnsupportedOperation, op)
}
