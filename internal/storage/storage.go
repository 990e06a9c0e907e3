package storage

import "errors"

var (
	ErrLinkNotFound      = errors.New("link not found")
	ErrCodeExists        = errors.New("code already exists")
	ErrURLExists         = errors.New("url already exists")
	ErrWorkspaceNotFound = errors.New("workspace not found")
)
