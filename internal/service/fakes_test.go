package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"wisefido-bridge/internal/enrichment"
	"wisefido-bridge/internal/models"
)

// recorder 记录各依赖的调用顺序
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeSource struct {
	mu       sync.Mutex
	readings []*models.Reading
	idx      int
	closed   int
	rec      *recorder
}

func (s *fakeSource) Acquire(context.Context) *models.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec != nil {
		s.rec.add("acquire")
	}
	if s.idx >= len(s.readings) {
		return nil
	}
	r := s.readings[s.idx]
	s.idx++
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeStore struct {
	mu       sync.Mutex
	readings []models.Reading
	alerts   []models.AlertEvent
	failNext int
	rec      *recorder
}

func (s *fakeStore) SaveReading(_ context.Context, r *models.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.add("persist")
	if s.failNext > 0 {
		s.failNext--
		return errors.New("database is locked")
	}
	s.readings = append(s.readings, *r)
	return nil
}

func (s *fakeStore) SaveAlert(_ context.Context, event *models.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.add("save_alert")
	s.alerts = append(s.alerts, *event)
	return nil
}

func (s *fakeStore) readingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readings)
}

type fakeForwarder struct {
	aiTexts []string
	fail    bool
	rec     *recorder
}

func (f *fakeForwarder) Forward(_ context.Context, _ models.Reading, aiText string) models.DeliveryResult {
	f.rec.add("forward")
	f.aiTexts = append(f.aiTexts, aiText)
	if f.fail {
		return models.DeliveryResult{StatusCode: 502, Err: errors.New("bad gateway")}
	}
	return models.DeliveryResult{Delivered: true, StatusCode: 200}
}

type fakeAnalyzer struct {
	text  string
	calls int
	sizes []int
	delay time.Duration
	rec   *recorder
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, readings []models.Reading) enrichment.Analysis {
	a.rec.add("analyze")
	a.calls++
	a.sizes = append(a.sizes, len(readings))
	if a.delay > 0 {
		select {
		case <-ctx.Done():
			return enrichment.Analysis{Err: ctx.Err()}
		case <-time.After(a.delay):
		}
	}
	if len(readings) < enrichment.MinReadings {
		return enrichment.Analysis{Skipped: true}
	}
	return enrichment.Analysis{Text: a.text}
}

type fakeNotifier struct {
	events []*models.AlertEvent
	fail   bool
	rec    *recorder
}

func (n *fakeNotifier) Notify(_ context.Context, event *models.AlertEvent, _ float64) models.DeliveryResult {
	n.rec.add("notify")
	n.events = append(n.events, event)
	if n.fail {
		return models.DeliveryResult{Err: errors.New("line push failed")}
	}
	return models.DeliveryResult{Delivered: true}
}

type fakePublisher struct {
	readings int
	alerts   int
}

func (p *fakePublisher) PublishReading(context.Context, models.Reading) models.DeliveryResult {
	p.readings++
	return models.DeliveryResult{Delivered: true}
}

func (p *fakePublisher) PublishAlert(context.Context, *models.AlertEvent) models.DeliveryResult {
	p.alerts++
	return models.DeliveryResult{Delivered: true}
}
