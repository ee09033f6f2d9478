package arena

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// hugePageMountInfo scans /proc/mounts for a hugetlbfs mount whose
// pagesize= option matches pageSize, and cross-checks /proc/meminfo's
// HugePages_Total to confirm pages were actually reserved, mirroring
// _jbpf_get_persistent_hp_info's setmntent/getmntent walk. If
// preferredMount is non-empty it is checked first.
func hugePageMountInfo(preferredMount string, pageSize uintptr) (hugePageInfo, error) {
	info := hugePageInfo{pageSize: pageSize}

	f, err := os.Open("/proc/mounts")
	if err != nil {
		return info, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[2] != "hugetlbfs" {
			continue
		}
		mount := fields[1]
		if preferredMount != "" && mount != preferredMount {
			continue
		}
		if mountPageSize(fields[3]) != pageSize {
			continue
		}
		info.mountPoint = mount
		break
	}
	if err := scanner.Err(); err != nil {
		return info, err
	}
	if info.mountPoint == "" {
		return info, nil
	}

	total, err := hugePagesTotal()
	if err != nil {
		return info, err
	}
	info.available = total > 0
	return info, nil
}

func mountPageSize(opts string) uintptr {
	for _, opt := range strings.Split(opts, ",") {
		if strings.HasPrefix(opt, "pagesize=") {
			v := strings.TrimSuffix(strings.TrimPrefix(opt, "pagesize="), "k")
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				continue
			}
			if strings.HasSuffix(opt, "k") {
				return uintptr(n) * 1024
			}
			return uintptr(n)
		}
	}
	return 0
}

func hugePagesTotal() (int, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "HugePages_Total:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, nil
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, nil
		}
		return n, nil
	}
	return 0, scanner.Err()
}
