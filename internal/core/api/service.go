// Package api implements the LabelKeeper service shared by the HTTP and gRPC
// transports.
package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/solatis/labelkeeper/internal/core/broadcast"
	"github.com/solatis/labelkeeper/internal/core/metrics"
	"github.com/solatis/labelkeeper/internal/rules"
	"github.com/solatis/labelkeeper/internal/types"
)

// Store is the persistence the service needs. Implemented by *db.Store.
type Store interface {
	EnsureUser(ctx context.Context, user types.UserID) error
	EnsureUserProfile(ctx context.Context, user types.UserID, email, name string) error
	ListRules(ctx context.Context, user types.UserID) ([]types.Rule, error)
	ListActiveRules(ctx context.Context, user types.UserID) ([]types.Rule, error)
	GetRule(ctx context.Context, user types.UserID, id types.RuleID) (types.Rule, error)
	CreateRule(ctx context.Context, rule types.Rule) (types.Rule, error)
	UpdateRule(ctx context.Context, rule types.Rule) error
	DeleteRule(ctx context.Context, user types.UserID, id types.RuleID) error
	ToggleRule(ctx context.Context, user types.UserID, id types.RuleID) (bool, error)
	SavePayload(ctx context.Context, p types.ProcessedPayload) error
	Statistics(ctx context.Context, f types.StatsFilter) (types.Statistics, error)
}

const bestEffortTimeout = 2 * time.Second

// LabelService is a thin orchestration layer over the store, the rules
// engine and the statistics hub.
type LabelService struct {
	store   Store
	engine  *rules.Engine
	hub     *broadcast.Hub
	metrics *metrics.Metrics
	now     func() time.Time

	auditDir     string
	jsonlMutexes map[string]*sync.Mutex
	mutexLock    sync.Mutex
}

// NewLabelService creates service instance with dependencies.
// Auto-creates the payload audit directory under dataDir; an empty dataDir
// disables the audit log.
func NewLabelService(store Store, engine *rules.Engine, hub *broadcast.Hub, m *metrics.Metrics, dataDir string) (*LabelService, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if hub == nil {
		return nil, errors.New("hub cannot be nil")
	}
	if m == nil {
		return nil, errors.New("metrics cannot be nil")
	}

	var auditDir string
	if dataDir != "" {
		auditDir = filepath.Join(dataDir, "payloads")
		if err := os.MkdirAll(auditDir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}

	return &LabelService{
		store:        store,
		engine:       engine,
		hub:          hub,
		metrics:      m,
		now:          time.Now,
		auditDir:     auditDir,
		jsonlMutexes: make(map[string]*sync.Mutex),
	}, nil
}

// Hub returns the statistics hub live streams subscribe to.
func (s *LabelService) Hub() *broadcast.Hub {
	return s.hub
}

// getJSONLMutex returns mutex for given filename, creating if not exists.
// The map grows by one entry per day.
func (s *LabelService) getJSONLMutex(filename string) *sync.Mutex {
	s.mutexLock.Lock()
	defer s.mutexLock.Unlock()

	if _, ok := s.jsonlMutexes[filename]; !ok {
		s.jsonlMutexes[filename] = &sync.Mutex{}
	}
	return s.jsonlMutexes[filename]
}
