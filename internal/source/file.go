package source

import (
	"context"
	"os"
)

// File はローカルファイルの入力元。
type File struct {
	path    string
	maxSize int64
}

// NewFile はファイル入力元を生成する。
func NewFile(path string, maxSize int64) *File {
	return &File{path: path, maxSize: maxSize}
}

func (f *File) Name() string { return f.path }
func (f *File) Kind() Kind   { return KindFile }

func (f *File) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, f.fail(err)
	}
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, f.fail(err)
	}
	defer fh.Close()

	data, err := readLimited(fh, f.maxSize)
	if err != nil {
		return nil, f.fail(err)
	}
	return data, nil
}

func (f *File) fail(err error) error {
	return &AcquisitionError{Source: f.path, Kind: KindFile, Err: err}
}
