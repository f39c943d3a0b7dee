//go:build windows

package process

import (
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/windows"
)

func detachAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NO_WINDOW | windows.DETACHED_PROCESS,
		HideWindow:    true,
	}
}

func rootDir() string {
	return filepath.VolumeName(os.TempDir()) + `\`
}
