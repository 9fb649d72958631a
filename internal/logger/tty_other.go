//go:build !linux

package logger

import "os"

func isTerminal(*os.File) bool { return false }
