package workqueue

import "sync"

// ConcurrencyStrategy controls how tasks are allowed to start concurrently.
// The strategy tracks running tasks and decides whether a new one may
// start, split by whether the task writes to the fact store.
type ConcurrencyStrategy interface {
	// CanStartStore returns true if a store-writing task can start.
	CanStartStore() bool
	// CanStartTranslate returns true if a translation task can start.
	CanStartTranslate() bool
	// OnStartStore is called when a store-writing task starts.
	OnStartStore()
	// OnStartTranslate is called when a translation task starts.
	OnStartTranslate()
	// OnCompleteStore is called when a store-writing task completes.
	OnCompleteStore()
	// OnCompleteTranslate is called when a translation task completes.
	OnCompleteTranslate()
}

// SerializedStrategy serializes both kinds of task: one store writer and
// one translator at a time, though one of each may run in parallel.
type SerializedStrategy struct {
	mu           sync.Mutex
	storeRunning bool
	transRunning bool
}

// NewSerializedStrategy creates the fully serialized strategy.
func NewSerializedStrategy() *SerializedStrategy {
	return &SerializedStrategy{}
}

func (s *SerializedStrategy) CanStartStore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.storeRunning
}

func (s *SerializedStrategy) CanStartTranslate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.transRunning
}

func (s *SerializedStrategy) OnStartStore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeRunning = true
}

func (s *SerializedStrategy) OnStartTranslate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transRunning = true
}

func (s *SerializedStrategy) OnCompleteStore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeRunning = false
}

func (s *SerializedStrategy) OnCompleteTranslate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transRunning = false
}

// ThrottledTranslateStrategy allows up to maxConcurrent translation tasks
// in parallel. Store-writing tasks stay serialized: the fact store's bulk
// upserts take row locks in sorted order, and one writer at a time keeps
// those transactions short.
type ThrottledTranslateStrategy struct {
	mu            sync.Mutex
	maxConcurrent int
	transRunning  int
	storeRunning  bool
}

// NewThrottledTranslateStrategy creates a strategy allowing up to
// maxConcurrent parallel translation tasks.
func NewThrottledTranslateStrategy(maxConcurrent int) *ThrottledTranslateStrategy {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ThrottledTranslateStrategy{
		maxConcurrent: maxConcurrent,
	}
}

func (s *ThrottledTranslateStrategy) CanStartStore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.storeRunning
}

func (s *ThrottledTranslateStrategy) CanStartTranslate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transRunning < s.maxConcurrent
}

func (s *ThrottledTranslateStrategy) OnStartStore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeRunning = true
}

func (s *ThrottledTranslateStrategy) OnStartTranslate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transRunning++
}

func (s *ThrottledTranslateStrategy) OnCompleteStore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeRunning = false
}

func (s *ThrottledTranslateStrategy) OnCompleteTranslate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transRunning > 0 {
		s.transRunning--
	}
}
