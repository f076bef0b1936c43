package packager

import "fmt"

// OutputInRootError is returned when the requested output file would land
// inside the directory being packaged.
type OutputInRootError struct {
	Root, Output string
}

func (e OutputInRootError) Error() string {
	return fmt.Sprintf("packager: output %s is inside root %s", e.Output, e.Root)
}

// OutputIsDirError is returned when the output path already exists and is a
// directory.
type OutputIsDirError struct {
	Output string
}

func (e OutputIsDirError) Error() string {
	return fmt.Sprintf("packager: output %s is an existing directory", e.Output)
}

// MetadataMissingError is returned when root has no metadata.yaml.
type MetadataMissingError struct {
	Root string
}

func (e MetadataMissingError) Error() string {
	return fmt.Sprintf("packager: %s/%s not found", e.Root, MetadataFilename)
}

// IndexError is returned when an app-kind package's input directory has no
// index.html.
type IndexError struct{}

func (e IndexError) Error() string {
	return "packager: app package has no index.html"
}

// UnexpectedFileError is returned when a comic-kind package's input
// directory contains a file whose name is not of the `<digits>.jpg` form.
type UnexpectedFileError struct {
	Path string
	Kind string
}

func (e UnexpectedFileError) Error() string {
	return fmt.Sprintf("packager: unexpected file %s for kind %s", e.Path, e.Kind)
}

// InvalidPageError is returned when a comic page filename has the
// `<digits>.jpg` form but is not canonical (`^(0|[1-9]\d*)\.jpg$`): its
// number has a leading zero.
type InvalidPageError struct {
	Path string
}

func (e InvalidPageError) Error() string {
	return fmt.Sprintf("packager: invalid page filename %s", e.Path)
}

// PageMissingError is returned when a comic's page numbers are not dense
// starting at 0.
type PageMissingError struct {
	Page int
}

func (e PageMissingError) Error() string {
	return fmt.Sprintf("packager: page %d.jpg is missing", e.Page)
}

// PageDuplicatedError is returned when a comic has two files claiming the
// same page number.
type PageDuplicatedError struct {
	Page int
}

func (e PageDuplicatedError) Error() string {
	return fmt.Sprintf("packager: page %d.jpg is duplicated", e.Page)
}

// NoPagesError is returned when a comic-kind package's input directory has
// no page files at all.
type NoPagesError struct{}

func (e NoPagesError) Error() string {
	return "packager: comic package has no pages"
}
