//go:build unix && !linux && !darwin

package memprobe

const maxrssUnit = 1024
