//go:build !windows
// +build !windows

package app

const (
	defaultStorageRoot = "/app/storage"
)
