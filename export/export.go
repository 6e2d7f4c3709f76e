// Package export packages a project into a downloadable zip archive.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"time"

	"github.com/andrejsstepanovs/architect/file"
	"github.com/andrejsstepanovs/architect/models"
	"github.com/mholt/archives"
)

const (
	MetadataFile = "architect_metadata.json"
	ReadmeFile   = "README.md"
)

// ErrNoFiles is returned for projects without generated files.
var ErrNoFiles = errors.New("project has no files to export")

// Metadata is the descriptor stored next to the sources.
type Metadata struct {
	Name       string          `json:"name"`
	Style      string          `json:"style"`
	Modules    []models.Module `json:"modules"`
	ExportedAt string          `json:"exportedAt"`
}

// Entry is one (path, content) pair of the archive.
type Entry struct {
	Path    string
	Content []byte
}

// ArchiveName returns the download name for a project.
func ArchiveName(projectName string) string {
	return file.Slug(projectName) + "-source.zip"
}

// Entries lists what goes into the archive: the generated files, the
// metadata document and the README. Later entries replace earlier ones with
// the same path.
func Entries(project models.Project, exportedAt time.Time) ([]Entry, error) {
	if !project.HasFiles() {
		return nil, ErrNoFiles
	}

	modules := project.Modules
	if modules == nil {
		modules = []models.Module{}
	}
	meta, err := json.MarshalIndent(Metadata{
		Name:       project.Name,
		Style:      project.Style,
		Modules:    modules,
		ExportedAt: exportedAt.UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	entries := make([]Entry, 0, len(project.Files)+2)
	index := map[string]int{}
	add := func(p string, content []byte) {
		if i, ok := index[p]; ok {
			entries[i].Content = content
			return
		}
		index[p] = len(entries)
		entries = append(entries, Entry{Path: p, Content: content})
	}

	for _, f := range project.Files {
		p, err := file.NormalizePath(f.Path)
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", f.Path, err)
		}
		add(p, []byte(f.Content))
	}
	add(MetadataFile, meta)
	add(ReadmeFile, []byte(project.Readme))

	return entries, nil
}

// Write streams the zip archive of project into w.
func Write(ctx context.Context, w io.Writer, project models.Project, exportedAt time.Time) error {
	entries, err := Entries(project, exportedAt)
	if err != nil {
		return err
	}

	files := make([]archives.FileInfo, 0, len(entries))
	for _, e := range entries {
		info := &entryInfo{name: e.Path, data: e.Content, modTime: exportedAt}
		files = append(files, archives.FileInfo{
			FileInfo:      info,
			NameInArchive: e.Path,
			Open: func() (fs.File, error) {
				return &entryFile{Reader: bytes.NewReader(info.data), info: info}, nil
			},
		})
	}

	format := archives.Zip{Compression: zip.Deflate}
	if err := format.Archive(ctx, w, files); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	return nil
}

type entryInfo struct {
	name    string
	data    []byte
	modTime time.Time
}

func (e *entryInfo) Name() string       { return path.Base(e.name) }
func (e *entryInfo) Size() int64        { return int64(len(e.data)) }
func (e *entryInfo) Mode() fs.FileMode  { return 0o644 }
func (e *entryInfo) ModTime() time.Time { return e.modTime }
func (e *entryInfo) IsDir() bool        { return false }
func (e *entryInfo) Sys() any           { return nil }

type entryFile struct {
	*bytes.Reader
	info *entryInfo
}

func (f *entryFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *entryFile) Close() error               { return nil }
