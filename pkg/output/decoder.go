package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// DefaultMaxLineBytes caps record line length at 1 MiB.
const DefaultMaxLineBytes = 1 << 20

// Decoder reads record streams produced by Writer implementations.
//
// Lines are length-capped to protect readers from corrupt or hostile
// input; blank lines are skipped.
type Decoder struct {
	r            *bufio.Reader
	maxLineBytes int
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r), maxLineBytes: DefaultMaxLineBytes}
}

// SetMaxLineBytes overrides the per-line cap. Values <= 0 restore the
// default.
func (d *Decoder) SetMaxLineBytes(n int) {
	if n <= 0 {
		d.maxLineBytes = DefaultMaxLineBytes
		return
	}
	d.maxLineBytes = n
}

// Next returns the next record in the stream, or io.EOF when exhausted.
func (d *Decoder) Next() (Record, error) {
	for {
		line, err := readLineLimited(d.r, d.maxLineBytes)
		if err != nil {
			return Record{}, err
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return Record{}, err
		}
		return rec, nil
	}
}

func readLineLimited(r *bufio.Reader, maxBytes int) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxLineBytes
	}

	var out []byte
	for {
		frag, err := r.ReadSlice('\n')
		out = append(out, frag...)
		if len(out) > maxBytes {
			return nil, errors.New("jsonl line exceeds max bytes")
		}
		if err == nil {
			return bytes.TrimSuffix(out, []byte("\n")), nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(out) == 0 {
				return nil, io.EOF
			}
			return out, nil
		}
		return nil, err
	}
}
