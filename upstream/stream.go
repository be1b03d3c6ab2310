package upstream

import (
	"bufio"
	"context"
	"io"
	"sync"
)

// 单帧上限。后端一行 JSON 通常远小于此值
const maxFrameBytes = 1 << 20

// Stream 上游流式响应的逐行帧迭代器，同时充当中止句柄。
// Abort 可在任意 goroutine 调用，上游连接恰好关闭一次。
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc
	once    sync.Once
	closed  bool
}

func newStream(body io.ReadCloser, cancel context.CancelFunc) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), maxFrameBytes)
	return &Stream{
		body:    body,
		scanner: sc,
		cancel:  cancel,
	}
}

// Next 读取下一帧（一行，不含行尾）。
// 流结束返回 io.EOF；传输错误原样返回。
func (s *Stream) Next() ([]byte, error) {
	if s.closed {
		return nil, io.EOF
	}
	if s.scanner.Scan() {
		return s.scanner.Bytes(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Abort 中止上游连接，停止后端继续生成。幂等。
//
// 关闭响应体会让后端观察到客户端断开；cancel 同时终止底层请求，
// 两者合并保证任何退出路径都不泄漏连接。
func (s *Stream) Abort() {
	s.once.Do(func() {
		s.closed = true
		_ = s.body.Close()
		if s.cancel != nil {
			s.cancel()
		}
	})
}
