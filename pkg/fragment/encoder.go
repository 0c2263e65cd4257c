// Package fragment adapts the external fragment encoder and corrects the
// field order of its output for the device firmware.
package fragment

import (
	"bufio"
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/lorawan-fota/fragvec/pkg/tools"
)

// ToolName identifies the encoder in errors.
const ToolName = "fragment-encoder"

// Report markers emitted by the encoder.
const (
	HeaderMarker   = "Fragmentation header likely"
	FragmentMarker = "[8, "
)

// FragmentMarkerValue is the first field of every fragment.
const FragmentMarkerValue = 8

// ControlBytes is the per-fragment overhead in front of the payload.
const ControlBytes = 3

var headerToken = regexp.MustCompile(`\b0x([0-9A-Fa-f]{2})\b`)

// Report is the parsed encoder output, in the encoder's raw field order.
type Report struct {
	Header    []int
	Fragments [][]int
	// Text is the complete encoder output.
	Text string
}

// Encoder fragments a persisted bundle.
type Encoder interface {
	Encode(ctx context.Context, path string, fragmentSize, window int) (Report, error)
}

// ExecEncoder invokes the external encoder command.
type ExecEncoder struct {
	Runner  tools.Runner
	Command string
}

// NewExecEncoder creates an encoder running command through runner
func NewExecEncoder(runner tools.Runner, command string) *ExecEncoder {
	return &ExecEncoder{Runner: runner, Command: command}
}

func (e *ExecEncoder) Encode(ctx context.Context, path string, fragmentSize, window int) (Report, error) {
	if fragmentSize <= 0 || window <= 0 {
		return Report{}, errors.Invariantf("fragment size %d and window %d must be positive", fragmentSize, window)
	}
	argv := tools.Command(e.Command, path, strconv.Itoa(fragmentSize), strconv.Itoa(window))
	out, err := e.Runner.Run(ctx, ToolName, argv)
	if err != nil {
		return Report{}, err
	}
	return ParseReport(string(out))
}

// ParseReport extracts the raw header and fragments from encoder output.
func ParseReport(text string) (Report, error) {
	r := Report{Text: text}
	seenHeader := false

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, HeaderMarker):
			if seenHeader {
				return Report{}, errors.Toolf(ToolName, "line %d: duplicate header line", lineNo)
			}
			seenHeader = true
			for _, m := range headerToken.FindAllStringSubmatch(strings.TrimPrefix(line, HeaderMarker), -1) {
				v, err := strconv.ParseUint(m[1], 16, 8)
				if err != nil {
					return Report{}, errors.Toolf(ToolName, "line %d: header token %q: %v", lineNo, m[0], err)
				}
				r.Header = append(r.Header, int(v))
			}

		case strings.HasPrefix(line, FragmentMarker):
			f, err := parseFragmentLine(line)
			if err != nil {
				return Report{}, errors.Toolf(ToolName, "line %d: %v", lineNo, err)
			}
			r.Fragments = append(r.Fragments, f)
		}
	}
	if err := scanner.Err(); err != nil {
		return Report{}, errors.Toolf(ToolName, "read report: %v", err)
	}

	if !seenHeader || len(r.Header) == 0 {
		return Report{}, errors.Toolf(ToolName, "no fragmentation header in output")
	}
	if len(r.Fragments) == 0 {
		return Report{}, errors.Toolf(ToolName, "no fragments in output")
	}

	slog.Info("encoder_report_parsed", "header_fields", len(r.Header), "fragments", len(r.Fragments))
	return r, nil
}

func parseFragmentLine(line string) ([]int, error) {
	body := strings.TrimSpace(line)
	body = strings.TrimPrefix(body, "[")
	body = strings.TrimSuffix(body, "]")

	fields := strings.Split(body, ",")
	out := make([]int, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
