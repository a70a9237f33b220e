package memprobe

// ru_maxrss is in kilobytes on Linux.
const maxrssUnit = 1024
