package source

import (
	"context"
	"errors"
	"io"
)

// Reader は任意のio.Reader（通常は標準入力）の入力元。
type Reader struct {
	name    string
	r       io.Reader
	maxSize int64
}

func (s *Reader) Name() string { return s.name }
func (s *Reader) Kind() Kind   { return KindStdin }

func (s *Reader) Read(ctx context.Context) ([]byte, error) {
	if s.r == nil {
		return nil, s.fail(errors.New("no input stream"))
	}
	if err := ctx.Err(); err != nil {
		return nil, s.fail(err)
	}
	data, err := readLimited(s.r, s.maxSize)
	if err != nil {
		return nil, s.fail(err)
	}
	return data, nil
}

func (s *Reader) fail(err error) error {
	return &AcquisitionError{Source: s.name, Kind: KindStdin, Err: err}
}

// NewReader は名前付きのio.Reader入力元を生成する。
func NewReader(name string, r io.Reader, maxSize int64) *Reader {
	return &Reader{name: name, r: r, maxSize: maxSize}
}
