package orm

import (
	"sync"

	"github.com/coderi421/bulkops/orm/model"
)

var _ model.ShadowStore = &ShadowState{}

// ShadowState 内存里的影子字段存储，以实体的指针作为 key
// 实体不再使用之后要调用 Forget，否则会一直持有实体
type ShadowState struct {
	mutex  sync.RWMutex
	values map[any]map[string]any
}

func NewShadowState() *ShadowState {
	return &ShadowState{
		values: make(map[any]map[string]any, 16),
	}
}

func (s *ShadowState) ShadowValue(entity any, field string) (any, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	vals, ok := s.values[entity]
	if !ok {
		return nil, false
	}
	val, ok := vals[field]
	return val, ok
}

func (s *ShadowState) SetShadowValue(entity any, field string, val any) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.values == nil {
		s.values = make(map[any]map[string]any, 16)
	}
	vals, ok := s.values[entity]
	if !ok {
		vals = make(map[string]any, 4)
		s.values[entity] = vals
	}
	vals[field] = val
}

// Forget 删除实体上全部的影子字段
func (s *ShadowState) Forget(entity any) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.values, entity)
}
