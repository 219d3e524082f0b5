package api

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/solatis/labelkeeper/internal/core/broadcast"
	"github.com/solatis/labelkeeper/internal/core/db"
	"github.com/solatis/labelkeeper/internal/core/metrics"
	"github.com/solatis/labelkeeper/internal/rules"
	"github.com/solatis/labelkeeper/internal/types"
)

type testEnv struct {
	svc     *LabelService
	store   *db.Store
	metrics *metrics.Metrics
	dataDir string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	dir := t.TempDir()
	database, err := db.Open("sqlite://" + filepath.Join(dir, "labelkeeper.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if _, err := db.MigrateUp(context.Background(), database); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	store, err := db.NewStore(database)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	m := metrics.New()
	svc, err := NewLabelService(store, rules.NewEngine(), broadcast.NewHub(), m, dir)
	if err != nil {
		t.Fatalf("NewLabelService() error = %v", err)
	}
	return testEnv{svc: svc, store: store, metrics: m, dataDir: dir}
}

func ptr[T any](v T) *T { return &v }

func TestNewLabelService_NilDependencies(t *testing.T) {
	env := newTestEnv(t)
	engine := rules.NewEngine()
	hub := broadcast.NewHub()
	m := metrics.New()

	tests := []struct {
		name   string
		store  Store
		engine *rules.Engine
		hub    *broadcast.Hub
		m      *metrics.Metrics
	}{
		{"nil store", nil, engine, hub, m},
		{"nil engine", env.store, nil, hub, m},
		{"nil hub", env.store, engine, nil, m},
		{"nil metrics", env.store, engine, hub, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLabelService(tt.store, tt.engine, tt.hub, tt.m, ""); err == nil {
				t.Error("NewLabelService() error = nil, want error")
			}
		})
	}
}

func TestProcess_DemoRules(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	if n, err := env.svc.SeedDemo(ctx); err != nil || n != 4 {
		t.Fatalf("SeedDemo() = %d, %v; want 4, nil", n, err)
	}

	tests := []struct {
		name       string
		body       string
		single     bool
		wantLabels []string
		wantRules  int
	}{
		{"yellow band", `{"Product": "Chocolate", "Price": 3}`, false, []string{"Yellow"}, 1},
		{"string price coerces", `{"Product": "Chocolate", "Price": " 1.5 "}`, false, []string{"Green"}, 1},
		{"company and low band", `{"CompanyName": "Amazon", "Product": "Chocolate", "Price": 1.5}`, false, []string{"Green"}, 2},
		{"company single", `{"CompanyName": "Amazon", "Product": "Chocolate", "Price": 1.5}`, true, []string{"Green"}, 1},
		{"google", `{"CompanyName": "Google"}`, false, []string{"Green"}, 1},
		{"no match", `{"Product": "Candy", "Price": 1}`, false, []string{}, 0},
		{"missing price", `{"Product": "Chocolate"}`, false, []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.svc.Process(ctx, DemoUserID, []byte(tt.body), tt.single)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if !reflect.DeepEqual(res.Labels, tt.wantLabels) {
				t.Errorf("Labels = %v, want %v", res.Labels, tt.wantLabels)
			}
			if len(res.AppliedRuleIDs) != tt.wantRules {
				t.Errorf("AppliedRuleIDs = %v, want %d entries", res.AppliedRuleIDs, tt.wantRules)
			}
			if res.PayloadID == "" || res.ProcessedAt.IsZero() {
				t.Errorf("result missing id or timestamp: %+v", res)
			}
		})
	}

	stats, err := env.svc.Statistics(ctx, types.StatsFilter{UserID: DemoUserID})
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	if stats.TotalPayloads != int64(len(tests)) {
		t.Errorf("TotalPayloads = %d, want %d", stats.TotalPayloads, len(tests))
	}

	if got := testutil.ToFloat64(env.metrics.PayloadsTotal.WithLabelValues(metrics.OutcomeMatched)); got != 5 {
		t.Errorf("matched payloads metric = %v, want 5", got)
	}
	if got := testutil.ToFloat64(env.metrics.PayloadsTotal.WithLabelValues(metrics.OutcomeUnmatched)); got != 2 {
		t.Errorf("unmatched payloads metric = %v, want 2", got)
	}
}

func TestProcess_InactiveRulesIgnored(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	rule, err := env.svc.CreateRule(ctx, "alice", RuleInput{
		Name:  ptr("Cheap"),
		Label: ptr("Green"),
		Conditions: &[]ConditionInput{
			{KeyPath: "Price", Operator: "<", Value: types.Number(2)},
		},
	})
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if _, err := env.svc.ToggleRule(ctx, "alice", rule.ID); err != nil {
		t.Fatalf("ToggleRule() error = %v", err)
	}

	res, err := env.svc.Process(ctx, "alice", []byte(`{"Price": 1}`), false)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(res.Labels) != 0 {
		t.Errorf("Labels = %v, want none for inactive rule", res.Labels)
	}
}

func TestProcess_RejectsNonObjects(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	bodies := []string{``, `not json`, `[1, 2]`, `"text"`, `42`, `null`, `{"a": 1`}
	for _, body := range bodies {
		if _, err := env.svc.Process(ctx, "alice", []byte(body), false); !errors.Is(err, types.ErrPayloadNotObject) {
			t.Errorf("Process(%q) error = %v, want ErrPayloadNotObject", body, err)
		}
	}

	if got := testutil.ToFloat64(env.metrics.PayloadsTotal.WithLabelValues(metrics.OutcomeRejected)); got != float64(len(bodies)) {
		t.Errorf("rejected metric = %v, want %d", got, len(bodies))
	}
}

func TestProcess_TooLarge(t *testing.T) {
	env := newTestEnv(t)
	body := `{"a": "` + strings.Repeat("x", types.MaxPayloadSize) + `"}`

	_, err := env.svc.Process(context.Background(), "alice", []byte(body), false)
	if !errors.Is(err, types.ErrPayloadTooLarge) {
		t.Errorf("Process() error = %v, want ErrPayloadTooLarge", err)
	}
}

func TestProcess_WritesAuditLog(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	fixed := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	env.svc.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		if _, err := env.svc.Process(ctx, "alice", []byte("{\n  \"n\": 1\n}"), false); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
	}

	f, err := os.Open(filepath.Join(env.dataDir, "payloads", "2025-03-14.jsonl"))
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		if !strings.Contains(scanner.Text(), `"payload":{"n":1}`) {
			t.Errorf("audit line %q missing compacted payload", scanner.Text())
		}
	}
	if lines != 3 {
		t.Errorf("audit lines = %d, want 3", lines)
	}
}

func TestProcess_PublishesStatistics(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sub := env.svc.Hub().Subscribe("alice")
	defer sub.Cancel()

	if _, err := env.svc.Process(ctx, "alice", []byte(`{"x": 1}`), false); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	select {
	case stats := <-sub.C:
		if stats.TotalPayloads != 1 {
			t.Errorf("published TotalPayloads = %d, want 1", stats.TotalPayloads)
		}
	case <-time.After(time.Second):
		t.Fatal("no statistics snapshot published")
	}
}

func TestExtractKeys(t *testing.T) {
	env := newTestEnv(t)

	keys, err := env.svc.ExtractKeys([]byte(`{"order": {"items": [{"price": 1}, {"sku": "a"}]}, "id": 7}`))
	if err != nil {
		t.Fatalf("ExtractKeys() error = %v", err)
	}
	want := []string{
		"id",
		"order",
		"order.items",
		"order.items[0].price",
		"order.items[1].sku",
		"order.items[]",
	}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("ExtractKeys() = %v, want %v", keys, want)
	}

	if _, err := env.svc.ExtractKeys([]byte(`[{"a": 1}]`)); !errors.Is(err, types.ErrPayloadNotObject) {
		t.Errorf("ExtractKeys(array) error = %v, want ErrPayloadNotObject", err)
	}
}

func TestSeedDemo_Idempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	if n, err := env.svc.SeedDemo(ctx); err != nil || n != 4 {
		t.Fatalf("first SeedDemo() = %d, %v", n, err)
	}
	if n, err := env.svc.SeedDemo(ctx); err != nil || n != 0 {
		t.Fatalf("second SeedDemo() = %d, %v; want 0, nil", n, err)
	}

	rs, _, err := env.svc.ListRules(ctx, DemoUserID)
	if err != nil {
		t.Fatal(err)
	}
	var labels []string
	for _, r := range rs {
		labels = append(labels, r.Label)
	}
	if want := []string{"Green", "Green", "Yellow", "Red"}; !reflect.DeepEqual(labels, want) {
		t.Errorf("demo labels by priority = %v, want %v", labels, want)
	}
}
