package app

import "syscall"

// diskStats reports capacity of the filesystem holding the capture data.
type diskStats struct {
	TotalBytes     uint64 `json:"total_bytes"`
	UsedBytes      uint64 `json:"used_bytes"`
	AvailableBytes uint64 `json:"available_bytes"`
}

// statDisk inspects the filesystem behind path. A nil result means the volume
// could not be read; callers omit the field in that case. AvailableBytes is
// what an unprivileged writer can use, so used+available may fall short of
// total on filesystems with reserved blocks.
func statDisk(path string) *diskStats {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		return nil
	}
	bs := uint64(fs.Bsize)
	total := fs.Blocks * bs
	return &diskStats{
		TotalBytes:     total,
		UsedBytes:      total - fs.Bfree*bs,
		AvailableBytes: fs.Bavail * bs,
	}
}
