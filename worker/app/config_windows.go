//go:build windows
// +build windows

package app

const (
	defaultStorageRoot = "C:\\ProgramData\\listenup\\storage"
)
