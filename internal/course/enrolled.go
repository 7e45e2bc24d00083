package course

import "sync"

// Epoch 报名集合的本地修改序号
type Epoch uint64

// EnrolledSet 当前用户已报名课程的 ID 集合（全局共享）
// 登录或会话变化时整体重建，报名成功时增量追加
// 并发安全，保持插入顺序
type EnrolledSet struct {
	mu    sync.RWMutex
	ids   []string
	index map[string]Epoch // courseID -> 加入时的本地序号，0 表示来自服务端
	epoch Epoch
	ready bool
}

// NewEnrolledSet 创建空集合
func NewEnrolledSet() *EnrolledSet {
	return &EnrolledSet{index: make(map[string]Epoch)}
}

// Epoch 返回当前本地修改序号，整体重建前记录下来传给 Replace
func (s *EnrolledSet) Epoch() Epoch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Add 追加课程 ID，已存在时不重复添加
// 返回 true 表示本次新增
func (s *EnrolledSet) Add(courseID string) bool {
	if courseID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	if _, ok := s.index[courseID]; ok {
		s.index[courseID] = s.epoch
		return false
	}
	s.index[courseID] = s.epoch
	s.ids = append(s.ids, courseID)
	return true
}

// Replace 用服务端权威列表整体替换集合
// since 之后本地新增的 ID 会被保留，避免较早发起的列表请求覆盖刚完成的报名
func (s *EnrolledSet) Replace(courseIDs []string, since Epoch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(courseIDs))
	index := make(map[string]Epoch, len(courseIDs))
	for _, id := range courseIDs {
		if id == "" {
			continue
		}
		if _, dup := index[id]; dup {
			continue
		}
		index[id] = 0
		ids = append(ids, id)
	}
	for _, id := range s.ids {
		added := s.index[id]
		if added > since {
			if _, ok := index[id]; !ok {
				ids = append(ids, id)
			}
			index[id] = added
		}
	}
	s.ids = ids
	s.index = index
}

// Contains 判断是否已报名
func (s *EnrolledSet) Contains(courseID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[courseID]
	return ok
}

// IDs 返回集合副本
func (s *EnrolledSet) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.ids...)
}

// Len 返回集合大小
func (s *EnrolledSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Ready 是否已至少完成一次服务端检查（区分“尚未检查”与“检查过且为空”）
func (s *EnrolledSet) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// MarkReady 标记已完成检查
func (s *EnrolledSet) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
}

// Reset 登出时清空集合并回到“尚未检查”状态
func (s *EnrolledSet) Reset() {
	s.mu.Lock()
	s.ids = nil
	s.index = make(map[string]Epoch)
	s.ready = false
	s.epoch++
	s.mu.Unlock()
}
