package admission

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// availableMemoryBytes 探测主机当前可用内存。
// Linux 读取 /proc/meminfo 的 MemAvailable；其他平台读取失败，
// 由调用方回落默认并行数。测试中可替换。
var availableMemoryBytes = probeMemInfo

const memInfoPath = "/proc/meminfo"

func probeMemInfo() (uint64, error) {
	f, err := os.Open(memInfoPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("MemAvailable not found in %s", memInfoPath)
}
