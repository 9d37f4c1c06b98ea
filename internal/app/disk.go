package app

import "syscall"

type diskStats struct {
	TotalBytes     uint64 `json:"total_bytes"`
	UsedBytes      uint64 `json:"used_bytes"`
	AvailableBytes uint64 `json:"available_bytes"`
}

// diskUsage reports usage of the filesystem holding path, or nil when path
// cannot be inspected (for example before the data root exists).
func diskUsage(path string) *diskStats {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return &diskStats{
		TotalBytes:     total,
		UsedBytes:      total - stat.Bfree*uint64(stat.Bsize),
		AvailableBytes: free,
	}
}
