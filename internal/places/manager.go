package places

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gapmap/internal/geo"
	"gapmap/internal/metrics"
	"gapmap/internal/zone"

	"golang.org/x/sync/errgroup"
)

// DuplicateRadiusMeters 名称相同且距离不超过该值的两条记录视为同一家店
const DuplicateRadiusMeters = 50.0

type status struct {
	healthy bool
	last    time.Time
}

// 文档注释：来源管理器
// 背景：负责来源注册、心跳、健康筛选，并对健康来源并发搜索后跨来源去重合并。
// 约束：心跳周期默认 30s；心跳异常视为不健康，自动从搜索集合剔除；线程安全读写。
type Manager struct {
	mu         sync.RWMutex
	ss         map[string]Source
	st         map[string]status
	hbInterval time.Duration
	logger     *slog.Logger
}

func NewManager(l *slog.Logger) *Manager {
	if l == nil {
		l = slog.Default()
	}
	return &Manager{ss: make(map[string]Source), st: make(map[string]status), hbInterval: 30 * time.Second, logger: l}
}

// SetHeartbeatInterval 须在 Start 之前调用；非正值忽略
func (m *Manager) SetHeartbeatInterval(d time.Duration) {
	if d > 0 {
		m.hbInterval = d
	}
}

// Register：新注册的来源默认健康
func (m *Manager) Register(s Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ss[s.Name()] = s
	m.st[s.Name()] = status{healthy: true, last: time.Now()}
	m.logger.Info("source_registered", "name", s.Name())
}

// Healthy 健康来源，按名称排序以保证合并顺序稳定
func (m *Manager) Healthy() []Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Source
	for k, s := range m.ss {
		if m.st[k].healthy {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Get 按名称取已注册来源（不论健康与否）
func (m *Manager) Get(name string) (Source, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.ss[name]
	return s, ok
}

// Start：周期心跳，ctx 取消时停止
func (m *Manager) Start(ctx context.Context) {
	t := time.NewTicker(m.hbInterval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.doHeartbeat(ctx)
			}
		}
	}()
}

// doHeartbeat 心跳调用在锁外进行，只在写状态时加锁
func (m *Manager) doHeartbeat(ctx context.Context) {
	m.mu.RLock()
	ss := make([]Source, 0, len(m.ss))
	for _, s := range m.ss {
		ss = append(ss, s)
	}
	m.mu.RUnlock()
	for _, s := range ss {
		err := s.Heartbeat(ctx)
		m.mu.Lock()
		m.st[s.Name()] = status{healthy: err == nil, last: time.Now()}
		m.mu.Unlock()
		if err != nil {
			m.logger.Debug("source_heartbeat_fail", "name", s.Name(), "err", err)
			metrics.SourceHeartbeatTotal.WithLabelValues(s.Name(), "fail").Inc()
		} else {
			metrics.SourceHeartbeatTotal.WithLabelValues(s.Name(), "ok").Inc()
		}
	}
}

// 文档注释：聚合搜索
// 背景：健康来源并发搜索；单个来源失败只记录日志与指标，不影响其他来源。
// 约束：无健康来源返回 ErrNoSources；全部来源失败返回首个错误；结果按来源名称顺序合并去重。
func (m *Manager) Search(ctx context.Context, q Query) ([]zone.Place, error) {
	if err := q.Bounds.Validate(); err != nil {
		return nil, err
	}
	hs := m.Healthy()
	if len(hs) == 0 {
		return nil, ErrNoSources
	}
	results := make([][]zone.Place, len(hs))
	errs := make([]error, len(hs))
	var g errgroup.Group
	for i, s := range hs {
		g.Go(func() error {
			results[i], errs[i] = SearchInstrumented(ctx, s, q)
			return nil
		})
	}
	_ = g.Wait()
	var merged []zone.Place
	failed := 0
	for i, s := range hs {
		if errs[i] != nil {
			failed++
			m.logger.Warn("source_search_fail", "name", s.Name(), "err", errs[i])
			continue
		}
		merged = Merge(merged, results[i])
	}
	if failed == len(hs) {
		return nil, fmt.Errorf("all sources failed: %w", errs[0])
	}
	if q.Limit > 0 && len(merged) > q.Limit {
		merged = merged[:q.Limit]
	}
	m.logger.Debug("source_search_done", "sources", len(hs), "failed", failed, "places", len(merged))
	return merged, nil
}

// SearchInstrumented 单来源搜索并记录指标
func SearchInstrumented(ctx context.Context, s Source, q Query) ([]zone.Place, error) {
	t0 := time.Now()
	metrics.SourceRequestsTotal.WithLabelValues(s.Name()).Inc()
	ps, err := s.Search(ctx, q)
	metrics.SourceDurationMs.WithLabelValues(s.Name()).Observe(float64(time.Since(t0).Milliseconds()))
	if err != nil || len(ps) == 0 {
		metrics.SourceFailTotal.WithLabelValues(s.Name()).Inc()
	} else {
		metrics.SourceSuccessTotal.WithLabelValues(s.Name()).Inc()
	}
	return ps, err
}

// 文档注释：跨来源去重合并
// 约束：归一化名称相同且距离不超过 DuplicateRadiusMeters 视为同一家；保留先出现的记录，仅补齐其缺失的可选字段。
func Merge(base, extra []zone.Place) []zone.Place {
	out := append([]zone.Place(nil), base...)
	for _, p := range extra {
		key := normalizeName(p.Name)
		dup := -1
		for i := range out {
			if normalizeName(out[i].Name) == key && geo.Distance(out[i].Location, p.Location) <= DuplicateRadiusMeters {
				dup = i
				break
			}
		}
		if dup < 0 {
			out = append(out, p)
			continue
		}
		fillMissing(&out[dup], p)
	}
	return out
}

func fillMissing(dst *zone.Place, src zone.Place) {
	if dst.ID == "" {
		dst.ID = src.ID
	}
	if dst.Address == "" {
		dst.Address = src.Address
	}
	if dst.Rating == nil {
		dst.Rating = src.Rating
	}
	if dst.ReviewCount == nil {
		dst.ReviewCount = src.ReviewCount
	}
	if len(dst.Types) == 0 {
		dst.Types = src.Types
	}
	if dst.Delivery == nil {
		dst.Delivery = src.Delivery
	}
	if dst.Takeout == nil {
		dst.Takeout = src.Takeout
	}
	if dst.DineIn == nil {
		dst.DineIn = src.DineIn
	}
	if dst.WheelchairAccessible == nil {
		dst.WheelchairAccessible = src.WheelchairAccessible
	}
}
