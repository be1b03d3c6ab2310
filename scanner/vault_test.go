package scanner

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVault_StoreAndLookup(t *testing.T) {
	v := NewVault()

	token := v.Store("email", "a@b.com")
	assert.Equal(t, "[EMAIL_1]", token)

	value, ok := v.Lookup(token)
	assert.True(t, ok)
	assert.Equal(t, "a@b.com", value)

	_, ok = v.Lookup("[EMAIL_99]")
	assert.False(t, ok)
}

func TestVault_SequencePerKind(t *testing.T) {
	v := NewVault()

	assert.Equal(t, "[EMAIL_1]", v.Store("email", "a@b.com"))
	assert.Equal(t, "[EMAIL_2]", v.Store("email", "c@d.com"))
	assert.Equal(t, "[PHONE_1]", v.Store("phone", "13812345678"))
	// 重复值复用令牌，不推进序号
	assert.Equal(t, "[EMAIL_1]", v.Store("email", "a@b.com"))
	assert.Equal(t, 3, v.Len())
}

func TestVault_Restore(t *testing.T) {
	v := NewVault()
	t1 := v.Store("email", "a@b.com")
	t2 := v.Store("ip_address", "10.0.0.1")

	text := fmt.Sprintf("mail %s from %s and keep [UNKNOWN_7]", t1, t2)
	restored := v.Restore(text)

	assert.Equal(t, "mail a@b.com from 10.0.0.1 and keep [UNKNOWN_7]", restored)
}

func TestVault_CapacityEviction(t *testing.T) {
	v := NewVaultWithCapacity(2)

	first := v.Store("email", "first@x.com")
	v.Store("email", "second@x.com")
	v.Store("email", "third@x.com")

	assert.Equal(t, 2, v.Len())
	_, ok := v.Lookup(first)
	assert.False(t, ok, "超容后最早条目应被淘汰")

	// 被淘汰的值可重新登记，拿到新令牌
	again := v.Store("email", "first@x.com")
	assert.Equal(t, "[EMAIL_4]", again)
}

func TestVault_ConcurrentStore(t *testing.T) {
	v := NewVault()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			v.Store("phone", fmt.Sprintf("1380000%04d", n))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 32, v.Len())
}
