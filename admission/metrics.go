package admission

import "time"

// ModelMetrics 单个模型队列的即时快照
type ModelMetrics struct {
	Model          string  `json:"model"`
	ParallelLimit  int     `json:"parallel_limit"`
	QueueLimit     int     `json:"queue_limit"`
	Active         int64   `json:"active"`
	Waiting        int     `json:"waiting"`
	AvailableSlots int64   `json:"available_slots"`
	QueueAvailable int     `json:"queue_available"`
	Processed      int64   `json:"processed"`
	Rejected       int64   `json:"rejected"`
	AvgWaitMs      float64 `json:"avg_wait_ms"`
	AvgProcessMs   float64 `json:"avg_processing_ms"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// Snapshot 返回全部模型队列的指标快照，键为模型名
func (c *Controller) Snapshot() map[string]ModelMetrics {
	c.mu.Lock()
	queues := make(map[string]*modelQueue, len(c.queues))
	for model, q := range c.queues {
		queues[model] = q
	}
	c.mu.Unlock()

	out := make(map[string]ModelMetrics, len(queues))
	for model, q := range queues {
		out[model] = q.snapshot(model)
	}
	return out
}

// ModelSnapshot 返回单个模型的指标快照；模型未知时返回 false
func (c *Controller) ModelSnapshot(model string) (ModelMetrics, bool) {
	c.mu.Lock()
	q, ok := c.queues[model]
	c.mu.Unlock()
	if !ok {
		return ModelMetrics{}, false
	}
	return q.snapshot(model), true
}

func (q *modelQueue) snapshot(model string) ModelMetrics {
	q.statsMu.Lock()
	defer q.statsMu.Unlock()

	waiting := q.queue.Len()
	m := ModelMetrics{
		Model:          model,
		ParallelLimit:  q.parallelLimit,
		QueueLimit:     q.queueLimit,
		Active:         q.active,
		Waiting:        waiting,
		AvailableSlots: int64(q.parallelLimit) - q.active,
		QueueAvailable: q.queueLimit - waiting,
		Processed:      q.processed,
		Rejected:       q.rejected,
		UptimeSeconds:  time.Since(q.createdAt).Seconds(),
	}
	if q.processed > 0 {
		m.AvgWaitMs = float64(q.cumWait.Milliseconds()) / float64(q.processed)
		m.AvgProcessMs = float64(q.cumProcessing.Milliseconds()) / float64(q.processed)
	}
	return m
}
