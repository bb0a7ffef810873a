package main

import (
	"errors"
	"fmt"
)

var (
	errNotDirectory = errors.New("not a directory")
	errFileNotFound = errors.New("file not found")
	errNotInFileSet = errors.New("file not found or access denied")
)

// alertKind classifies errors shown to the user as a blocking message.
type alertKind string

const (
	alertReadFailed   alertKind = "read-failed"
	alertRenderFailed alertKind = "render-failed"
	alertLinkNotFound alertKind = "link-not-found"
)

// viewError is a user-facing controller failure.
type viewError struct {
	kind alertKind
	path string
	err  error
}

func (e *viewError) Error() string {
	switch e.kind {
	case alertReadFailed:
		return fmt.Sprintf("error reading file %s: %v", e.path, e.err)
	case alertRenderFailed:
		return fmt.Sprintf("error rendering Markdown in %s: %v", e.path, e.err)
	case alertLinkNotFound:
		return fmt.Sprintf("%v: %s", e.err, e.path)
	}
	return e.err.Error()
}

func (e *viewError) Unwrap() error {
	return e.err
}
