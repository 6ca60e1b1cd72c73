package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/Veraticus/onion-topology/internal/model"
)

// ErrInputCancelled is returned when input is canceled by context or the operator
// quits.
var ErrInputCancelled = errors.New("input canceled")

// LineReader reads operator input a line at a time without ignoring cancellation.
type LineReader struct {
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewLineReader wraps reader.
func NewLineReader(reader io.Reader) *LineReader {
	if reader == nil {
		panic("reader cannot be nil")
	}
	return &LineReader{reader: bufio.NewReader(reader)}
}

// ReadLine returns the next trimmed line. It returns ErrInputCancelled as soon as
// ctx is done; the pending read finishes in the background.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ErrInputCancelled
	}

	type result struct {
		err   error
		value string
	}
	resultCh := make(chan result, 1)

	go func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		value, err := r.reader.ReadString('\n')
		resultCh <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-resultCh:
		if res.err != nil && !(errors.Is(res.err, io.EOF) && res.value != "") {
			return "", res.err
		}
		return strings.TrimSpace(res.value), nil
	}
}

// MappingPrompter asks the operator which column carries each semantic role.
type MappingPrompter struct {
	reader *LineReader
	writer io.Writer
}

// NewMappingPrompter creates a prompter reading from reader and writing to writer.
func NewMappingPrompter(reader io.Reader, writer io.Writer) *MappingPrompter {
	return &MappingPrompter{reader: NewLineReader(reader), writer: writer}
}

// PromptMapping walks through every required role. Each answer is a column number
// or name; an empty answer accepts the suggestion shown in brackets. "q" aborts.
func (p *MappingPrompter) PromptMapping(ctx context.Context, headers []string, suggested model.ColumnMapping) (model.ColumnMapping, error) {
	p.printf("%s\n", FormatTitle("Map columns"))
	for i, h := range headers {
		p.printf("  %s %s\n", SubtleStyle.Render(fmt.Sprintf("%2d.", i+1)), h)
	}
	p.printf("\n")

	mapping := make(model.ColumnMapping, len(model.RequiredRoles))
	for _, role := range model.RequiredRoles {
		def, _ := suggested.ColumnFor(role)
		if _, taken := mapping[def]; taken {
			def = ""
		}

		for {
			question := role.Description()
			if def != "" {
				question += fmt.Sprintf(" [%s]", def)
			}
			p.printf("%s", FormatPrompt(question))

			answer, err := p.reader.ReadLine(ctx)
			if err != nil {
				return nil, err
			}
			if strings.EqualFold(answer, "q") {
				return nil, ErrInputCancelled
			}

			column, err := pickColumn(answer, def, headers)
			if err != nil {
				p.printf("%s\n", FormatError(err.Error()))
				continue
			}
			if prev, taken := mapping[column]; taken {
				p.printf("%s\n", FormatError(fmt.Sprintf("%q is already mapped to %s", column, prev)))
				continue
			}
			mapping[column] = role
			break
		}
	}
	return mapping, nil
}

// Confirm asks a yes/no question; an empty answer returns def.
func (p *MappingPrompter) Confirm(ctx context.Context, question string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	for {
		p.printf("%s", FormatPrompt(fmt.Sprintf("%s (%s)", question, hint)))
		answer, err := p.reader.ReadLine(ctx)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		p.printf("%s\n", FormatError("please answer y or n"))
	}
}

func pickColumn(answer, def string, headers []string) (string, error) {
	if answer == "" {
		if def == "" {
			return "", errors.New("no suggestion; enter a column number or name")
		}
		return def, nil
	}
	if n, err := strconv.Atoi(answer); err == nil {
		if n < 1 || n > len(headers) {
			return "", fmt.Errorf("choose a number between 1 and %d", len(headers))
		}
		return headers[n-1], nil
	}
	for _, h := range headers {
		if strings.EqualFold(h, answer) {
			return h, nil
		}
	}
	return "", fmt.Errorf("no column named %q", answer)
}

func (p *MappingPrompter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.writer, format, args...)
}
