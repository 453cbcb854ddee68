package orm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShadowState(t *testing.T) {
	s := NewShadowState()
	p1, p2 := &Product{Id: 1}, &Product{Id: 1}

	s.SetShadowValue(p1, "TenantId", 7)
	val, ok := s.ShadowValue(p1, "TenantId")
	assert.True(t, ok)
	assert.Equal(t, 7, val)

	// 以指针作为 key，内容相同的两个实体互不影响
	_, ok = s.ShadowValue(p2, "TenantId")
	assert.False(t, ok)
	_, ok = s.ShadowValue(p1, "Other")
	assert.False(t, ok)

	s.Forget(p1)
	_, ok = s.ShadowValue(p1, "TenantId")
	assert.False(t, ok)
}

func TestShadowState_concurrent(t *testing.T) {
	s := NewShadowState()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := &Product{Id: int64(i)}
			s.SetShadowValue(p, "TenantId", i)
			val, ok := s.ShadowValue(p, "TenantId")
			assert.True(t, ok)
			assert.Equal(t, i, val)
		}(i)
	}
	wg.Wait()
}

func TestShadowState_zeroValue(t *testing.T) {
	var s ShadowState
	p := &Product{Id: 1}
	_, ok := s.ShadowValue(p, "TenantId")
	assert.False(t, ok)
	s.Forget(p)

	s.SetShadowValue(p, "TenantId", 3)
	val, ok := s.ShadowValue(p, "TenantId")
	assert.True(t, ok)
	assert.Equal(t, 3, val)
}
