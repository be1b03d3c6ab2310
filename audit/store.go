// =============================================================================
// 📝 防护裁定审计存储
// =============================================================================
// 每次输入/输出裁定异步写入一行。写入尽力而为：缓冲满即丢弃并告警，
// 绝不阻塞请求关键路径。存储失败只计数，不向调用方传播。
// =============================================================================
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/guardflow/internal/database"
)

// Recorder 审计记录接口
type Recorder interface {
	// Record 提交一条裁定记录，立即返回
	Record(e Entry)
	// Totals 返回累计计数
	Totals() Totals
	// Close 停止后台写入并等待缓冲排空
	Close() error
}

// Totals 审计累计计数
type Totals struct {
	Recorded int64 `json:"recorded"`
	Blocked  int64 `json:"blocked"`
	Dropped  int64 `json:"dropped"`
	Failed   int64 `json:"failed"`
}

// 后台写入缓冲大小。满时丢弃新记录。
const entryBufferSize = 1024

// 落库超时。审计写入不占用请求上下文。
const writeTimeout = 5 * time.Second

// Store 基于 GORM 的异步审计存储
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger

	entries chan Entry
	done    chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once

	recorded atomic.Int64
	blocked  atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
}

// NewStore 在已有连接池上创建审计存储并启动后台写入
func NewStore(pool *database.PoolManager, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		pool:    pool,
		logger:  logger.With(zap.String("component", "audit")),
		entries: make(chan Entry, entryBufferSize),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s
}

// Record 提交一条裁定记录。缓冲满时丢弃并计数。
func (s *Store) Record(e Entry) {
	select {
	case s.entries <- e:
	default:
		s.dropped.Add(1)
		s.logger.Warn("audit buffer full, entry dropped",
			zap.String("request_id", e.RequestID),
			zap.String("model", e.Model),
		)
	}
}

// Totals 返回累计计数
func (s *Store) Totals() Totals {
	return Totals{
		Recorded: s.recorded.Load(),
		Blocked:  s.blocked.Load(),
		Dropped:  s.dropped.Load(),
		Failed:   s.failed.Load(),
	}
}

// Close 停止接收新记录，排空缓冲后关闭连接池
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.pool.Close()
	})
	return err
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case e := <-s.entries:
			s.write(e)
		case <-s.done:
			// 排空剩余缓冲
			for {
				select {
				case e := <-s.entries:
					s.write(e)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	record := e.toRecord()
	if err := s.db().WithContext(ctx).Create(&record).Error; err != nil {
		s.failed.Add(1)
		s.logger.Warn("audit write failed",
			zap.String("request_id", e.RequestID),
			zap.Error(err),
		)
		return
	}
	s.recorded.Add(1)
	if !e.Allowed {
		s.blocked.Add(1)
	}
}

func (s *Store) db() *gorm.DB {
	return s.pool.DB()
}

// =============================================================================
// 空实现
// =============================================================================

// Nop 审计关闭时的空记录器
type Nop struct{}

func (Nop) Record(Entry)   {}
func (Nop) Totals() Totals { return Totals{} }
func (Nop) Close() error   { return nil }
