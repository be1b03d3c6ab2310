package scanner

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// defaultVaultCapacity 保管库默认容量，超出后淘汰最早条目
const defaultVaultCapacity = 10000

// vaultToken 匹配匿名化令牌，如 [EMAIL_3]
var vaultToken = regexp.MustCompile(`\[[A-Z_]+_\d+\]`)

// vaultEntry 一条已登记的映射，用于按插入序淘汰
type vaultEntry struct {
	token string
	key   string
}

// Vault 匿名化令牌保管库。
// 记录 令牌 ↔ 原文 的双向映射，供后续还原；并发安全。
type Vault struct {
	mu       sync.RWMutex
	capacity int
	byToken  map[string]string
	byValue  map[string]string
	counters map[string]int
	order    []vaultEntry
}

// NewVault 创建默认容量的保管库
func NewVault() *Vault {
	return NewVaultWithCapacity(defaultVaultCapacity)
}

// NewVaultWithCapacity 创建指定容量的保管库
func NewVaultWithCapacity(capacity int) *Vault {
	if capacity <= 0 {
		capacity = defaultVaultCapacity
	}
	return &Vault{
		capacity: capacity,
		byToken:  make(map[string]string),
		byValue:  make(map[string]string),
		counters: make(map[string]int),
	}
}

// Store 记录一个敏感值并返回其令牌。
// 同一 kind 下相同的值复用已有令牌。
func (v *Vault) Store(kind, value string) string {
	key := kind + "\x00" + value

	v.mu.Lock()
	defer v.mu.Unlock()

	if token, ok := v.byValue[key]; ok {
		return token
	}

	v.counters[kind]++
	token := fmt.Sprintf("[%s_%d]", strings.ToUpper(kind), v.counters[kind])

	if len(v.order) >= v.capacity {
		oldest := v.order[0]
		v.order = v.order[1:]
		delete(v.byToken, oldest.token)
		delete(v.byValue, oldest.key)
	}

	v.byToken[token] = value
	v.byValue[key] = token
	v.order = append(v.order, vaultEntry{token: token, key: key})
	return token
}

// Lookup 按令牌取回原文
func (v *Vault) Lookup(token string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	value, ok := v.byToken[token]
	return value, ok
}

// Restore 将文本中的已知令牌还原为原文。未知令牌原样保留
func (v *Vault) Restore(text string) string {
	return vaultToken.ReplaceAllStringFunc(text, func(token string) string {
		if value, ok := v.Lookup(token); ok {
			return value
		}
		return token
	})
}

// Len 返回当前条目数
func (v *Vault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.byToken)
}
