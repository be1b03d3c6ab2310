package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Direction 裁定方向
const (
	DirectionInput  = "input"
	DirectionOutput = "output"
)

// Record 一次防护裁定的审计行，对应 audit_records 表
type Record struct {
	ID             string    `gorm:"column:id;primaryKey"`
	RequestID      string    `gorm:"column:request_id"`
	Model          string    `gorm:"column:model"`
	Dialect        string    `gorm:"column:dialect"`
	Direction      string    `gorm:"column:direction"`
	Allowed        bool      `gorm:"column:allowed"`
	FailedScanners string    `gorm:"column:failed_scanners"`
	RiskScores     string    `gorm:"column:risk_scores"`
	Language       string    `gorm:"column:language"`
	LatencyMS      int64     `gorm:"column:latency_ms"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

// TableName 表名与迁移脚本保持一致
func (Record) TableName() string {
	return "audit_records"
}

// Entry 一次待记录的防护裁定
type Entry struct {
	RequestID      string
	Model          string
	Dialect        string
	Direction      string
	Allowed        bool
	FailedScanners []string
	RiskScores     map[string]float64
	Language       string
	Latency        time.Duration
}

// toRecord 生成落库行，JSON 字段序列化失败时落空集合
func (e Entry) toRecord() Record {
	failed, err := json.Marshal(e.FailedScanners)
	if err != nil || e.FailedScanners == nil {
		failed = []byte("[]")
	}
	risks, err := json.Marshal(e.RiskScores)
	if err != nil || e.RiskScores == nil {
		risks = []byte("{}")
	}
	lang := e.Language
	if lang == "" {
		lang = "en"
	}
	return Record{
		ID:             uuid.NewString(),
		RequestID:      e.RequestID,
		Model:          e.Model,
		Dialect:        e.Dialect,
		Direction:      e.Direction,
		Allowed:        e.Allowed,
		FailedScanners: string(failed),
		RiskScores:     string(risks),
		Language:       lang,
		LatencyMS:      e.Latency.Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
}
