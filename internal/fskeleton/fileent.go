// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package fskeleton

import (
	"io/fs"
	"time"
)

var _ node = new(fileent)

// fileent is a regular file. Opening it calls opener, passing the
// fileent itself as the "stub" fs.File: CreateRandomAccessFile's opener
// only needs the stub's Stat method (to build raFile's raMetadata), so
// fileent satisfies fs.File defensively rather than meaningfully.
type fileent struct {
	name    string
	size    int64
	mode    fs.FileMode
	modtime time.Time
	sys     any
	opener  OpenFunc
}

func (e *fileent) open() (fs.File, error) { return e.opener(e) }

// common to fs.DirEntry and fs.FileInfo
func (e *fileent) Name() string { return e.name }
func (e *fileent) IsDir() bool  { return false }

// fs.DirEntry
func (e *fileent) Type() fs.FileMode          { return e.mode.Type() }
func (e *fileent) Info() (fs.FileInfo, error) { return e, nil }

// fs.FileInfo
func (e *fileent) Size() int64        { return e.size }
func (e *fileent) Mode() fs.FileMode  { return e.mode }
func (e *fileent) ModTime() time.Time { return e.modtime }
func (e *fileent) Sys() any           { return e.sys }

// fs.File, to serve as opener's stub argument. Never meant to be used
// as the actual content of the file.
func (e *fileent) Stat() (fs.FileInfo, error) { return e, nil }
func (e *fileent) Read([]byte) (int, error)   { return 0, fs.ErrInvalid }
func (e *fileent) Close() error               { return nil }
