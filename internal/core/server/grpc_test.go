package server

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/solatis/labelkeeper/internal/core/api"
	"github.com/solatis/labelkeeper/internal/core/config"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type grpcEnv struct {
	client *ClassifierClient
	conn   *grpc.ClientConn
	svc    *api.LabelService
	server *GRPCServer
}

func newGRPCEnv(t *testing.T) grpcEnv {
	t.Helper()

	svc, m := newTestService(t)
	cfg := config.Default().Server
	srv, err := NewGRPCServer(&cfg, svc, testResolver(), m, discardLogger())
	if err != nil {
		t.Fatalf("NewGRPCServer() error = %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return grpcEnv{client: NewClassifierClient(conn), conn: conn, svc: svc, server: srv}
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func asUser(user string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "x-user-id", user)
}

func TestNewGRPCServer_NilDependencies(t *testing.T) {
	svc, m := newTestService(t)
	cfg := config.Default().Server

	if _, err := NewGRPCServer(nil, svc, testResolver(), m, nil); err == nil {
		t.Error("nil cfg accepted")
	}
	if _, err := NewGRPCServer(&cfg, nil, testResolver(), m, nil); err == nil {
		t.Error("nil service accepted")
	}
	if _, err := NewGRPCServer(&cfg, svc, nil, m, nil); err == nil {
		t.Error("nil resolver accepted")
	}
	if _, err := NewGRPCServer(&cfg, svc, testResolver(), nil, nil); err == nil {
		t.Error("nil metrics accepted")
	}
}

func TestGRPC_Process(t *testing.T) {
	env := newGRPCEnv(t)
	if _, err := env.svc.SeedDemo(context.Background()); err != nil {
		t.Fatal(err)
	}

	req := mustStruct(t, map[string]any{
		"payload": map[string]any{"Product": "Chocolate", "Price": 3.0},
	})
	resp, err := env.client.Process(asUser("demo_user"), req)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	labels := resp.GetFields()["labels"].GetListValue().AsSlice()
	if len(labels) != 1 || labels[0] != "Yellow" {
		t.Errorf("labels = %v, want [Yellow]", labels)
	}
	if resp.GetFields()["payload_id"].GetStringValue() == "" {
		t.Error("payload_id missing")
	}

	// Company rule (priority 5) and Choco Low (10) both match; single keeps one.
	req = mustStruct(t, map[string]any{
		"payload":      map[string]any{"Product": "Chocolate", "CompanyName": "Amazon", "Price": 1.0},
		"single_label": true,
	})
	resp, err = env.client.Process(asUser("demo_user"), req)
	if err != nil {
		t.Fatalf("Process(single) error = %v", err)
	}
	if ids := resp.GetFields()["applied_rule_ids"].GetListValue().AsSlice(); len(ids) != 1 {
		t.Errorf("applied_rule_ids = %v, want one", ids)
	}
}

func TestGRPC_ProcessErrors(t *testing.T) {
	env := newGRPCEnv(t)

	_, err := env.client.Process(asUser("u1"), mustStruct(t, map[string]any{"payload": "text"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("non-object payload code = %v, want InvalidArgument", status.Code(err))
	}

	_, err = env.client.Process(asUser(strings.Repeat("u", 100)), mustStruct(t, map[string]any{"payload": map[string]any{}}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("bad user code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestGRPC_ExtractKeys(t *testing.T) {
	env := newGRPCEnv(t)

	resp, err := env.client.ExtractKeys(context.Background(), mustStruct(t, map[string]any{
		"order": map[string]any{"items": []any{map[string]any{"sku": "a"}}},
	}))
	if err != nil {
		t.Fatalf("ExtractKeys() error = %v", err)
	}

	got := resp.GetFields()["keys"].GetListValue().AsSlice()
	want := []any{"order", "order.items", "order.items[0].sku", "order.items[]"}
	if len(got) != len(want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("keys[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestGRPC_Statistics(t *testing.T) {
	env := newGRPCEnv(t)
	if _, err := env.client.Process(asUser("u1"), mustStruct(t, map[string]any{"payload": map[string]any{"x": 1.0}})); err != nil {
		t.Fatal(err)
	}

	resp, err := env.client.Statistics(asUser("u1"), mustStruct(t, map[string]any{}))
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	if total := resp.GetFields()["total_payloads"].GetNumberValue(); total != 1 {
		t.Errorf("total_payloads = %v, want 1", total)
	}

	_, err = env.client.Statistics(asUser("u1"), mustStruct(t, map[string]any{"from": "not a date"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("bad range code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestGRPC_Health(t *testing.T) {
	env := newGRPCEnv(t)
	client := grpc_health_v1.NewHealthClient(env.conn)

	for _, service := range []string{"", ClassifierServiceName} {
		resp, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q) error = %v", service, err)
		}
		if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
			t.Errorf("Check(%q) = %v, want SERVING", service, resp.GetStatus())
		}
	}
}
