//go:build !windows

package process

import "syscall"

func detachAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

func rootDir() string {
	return "/"
}
