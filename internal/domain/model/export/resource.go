package export

import (
	"bytes"
	"io"
	"os"
	"sync"
	"time"
)

// Resource is one payload produced by the extraction phase and consumed by the upload phase.
// Close releases the underlying storage and is safe to call more than once.
type Resource interface {
	io.Closer
	// Open returns a fresh reader over the whole payload.
	Open() (io.ReadCloser, error)
	Name() string
	ContentType() string
	ContentEncoding() string
	ContentLength() int64
	LastModified() time.Time
}

// ResourceMeta holds the descriptive attributes shared by resource implementations.
type ResourceMeta struct {
	Filename string
	Type     string
	Encoding string
	Modified time.Time
}

func (m ResourceMeta) Name() string            { return m.Filename }
func (m ResourceMeta) ContentType() string     { return m.Type }
func (m ResourceMeta) ContentEncoding() string { return m.Encoding }
func (m ResourceMeta) LastModified() time.Time { return m.Modified }

// BytesResource keeps its payload in memory.
type BytesResource struct {
	ResourceMeta
	data []byte
}

func NewBytesResource(meta ResourceMeta, data []byte) *BytesResource {
	return &BytesResource{ResourceMeta: meta, data: data}
}

func (r *BytesResource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(r.data)), nil
}

func (r *BytesResource) ContentLength() int64 { return int64(len(r.data)) }

func (r *BytesResource) Close() error {
	r.data = nil
	return nil
}

// FileResource is backed by a temporary file that is removed on Close.
type FileResource struct {
	ResourceMeta
	path   string
	length int64
	once   sync.Once
	err    error
}

func NewFileResource(meta ResourceMeta, path string, length int64) *FileResource {
	return &FileResource{ResourceMeta: meta, path: path, length: length}
}

func (r *FileResource) Open() (io.ReadCloser, error) {
	return os.Open(r.path)
}

func (r *FileResource) Path() string { return r.path }

func (r *FileResource) ContentLength() int64 { return r.length }

func (r *FileResource) Close() error {
	r.once.Do(func() {
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
			r.err = err
		}
	})
	return r.err
}

// CloseResources closes every resource and returns the first error.
func CloseResources(resources []Resource) error {
	var first error
	for _, r := range resources {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
