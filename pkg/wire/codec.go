package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// Reader decodes protocol fields from a byte stream.
type Reader struct {
	r *bufio.Reader
}

// NewReader creates a Reader.
func NewReader(r io.Reader) *Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return &Reader{r: br}
	}
	return &Reader{r: bufio.NewReader(r)}
}

// ReadTag reads a 4-byte tag.
func (r *Reader) ReadTag() (Tag, error) {
	var t Tag
	if _, err := io.ReadFull(r.r, t[:]); err != nil {
		return t, err
	}
	return t, nil
}

// ReadInt reads a 32-bit signed integer.
func (r *Reader) ReadInt() (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, fmt.Errorf("read int: %w", err)
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// ReadString reads a prefixed, length-delimited string. Null strings decode
// to "".
func (r *Reader) ReadString() (string, error) {
	prefix, err := r.r.ReadByte()
	if err != nil {
		return "", fmt.Errorf("read string prefix: %w", err)
	}
	if prefix == PrefixNull {
		return "", nil
	}
	if prefix != PrefixUTF8 && prefix != PrefixASCII && prefix != PrefixUTF16 {
		return "", &PrefixError{Prefix: prefix}
	}

	n, err := r.ReadInt()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", ErrNegativeLength
	}
	if n > MaxStringLength {
		return "", ErrStringTooLong
	}
	if n == 0 {
		return "", nil
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", fmt.Errorf("read string body: %w", err)
	}

	if prefix == PrefixUTF16 {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(buf)
		if err != nil {
			return "", fmt.Errorf("decode utf-16: %w", err)
		}
		return string(out), nil
	}
	return string(buf), nil
}

// ReadEvalResult reads an evaluation result record.
func (r *Reader) ReadEvalResult() (EvalResult, error) {
	var res EvalResult
	var err error
	if res.Repr, err = r.ReadString(); err != nil {
		return res, err
	}
	if res.HexRepr, err = r.ReadString(); err != nil {
		return res, err
	}
	if res.TypeName, err = r.ReadString(); err != nil {
		return res, err
	}
	if res.Length, err = r.ReadInt(); err != nil {
		return res, err
	}
	var flags int32
	if flags, err = r.ReadInt(); err != nil {
		return res, err
	}
	res.Flags = ResultFlags(flags)
	return res, nil
}

// Writer encodes protocol fields. Callers must Flush after each message.
type Writer struct {
	dst io.Writer
	w   *bufio.Writer
	err error
}

// NewWriter creates a Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{dst: w, w: bufio.NewWriter(w)}
}

// Err returns the first error encountered since the last Flush.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(p)
}

// WriteTag writes a tag.
func (w *Writer) WriteTag(t Tag) *Writer {
	w.write(t[:])
	return w
}

// WriteInt writes a 32-bit signed integer.
func (w *Writer) WriteInt(v int32) *Writer {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	w.write(buf[:])
	return w
}

// WriteString writes s as a UTF-8 string. Invalid UTF-8 sequences are replaced.
func (w *Writer) WriteString(s string) *Writer {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	if len(s) > MaxStringLength {
		if w.err == nil {
			w.err = ErrStringTooLong
		}
		return w
	}
	w.write([]byte{PrefixUTF8})
	w.WriteInt(int32(len(s)))
	w.write([]byte(s))
	return w
}

// WriteNull writes a null string.
func (w *Writer) WriteNull() *Writer {
	w.write([]byte{PrefixNull})
	return w
}

// WriteEvalResult writes an evaluation result record.
func (w *Writer) WriteEvalResult(res EvalResult) *Writer {
	w.WriteString(res.Repr)
	if res.HexRepr == "" {
		w.WriteNull()
	} else {
		w.WriteString(res.HexRepr)
	}
	w.WriteString(res.TypeName)
	w.WriteInt(res.Length)
	w.WriteInt(int32(res.Flags))
	return w
}

// Flush writes buffered data and returns the first error of the message.
func (w *Writer) Flush() error {
	if w.err != nil {
		err := w.err
		w.err = nil
		w.w.Reset(w.dst)
		return err
	}
	return w.w.Flush()
}
