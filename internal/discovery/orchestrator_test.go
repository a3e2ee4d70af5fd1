package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/audit"
	"github.com/yourusername/cloudcity/internal/cost"
	"github.com/yourusername/cloudcity/internal/graph"
	"github.com/yourusername/cloudcity/internal/logger"
	"github.com/yourusername/cloudcity/internal/models"
	"github.com/yourusername/cloudcity/internal/store"
)

// fakeProvider serves one VPC, subnet and instance per region, two pages of
// subnets, and lets tests inject failures or block a type.
type fakeProvider struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error // "region/type"
	block   map[string]bool
	entered chan string
	tokens  map[string]string // "region/type" -> token returned forever
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		fail:    make(map[string]error),
		block:   make(map[string]bool),
		tokens:  make(map[string]string),
		entered: make(chan string, 64),
	}
}

func (f *fakeProvider) List(ctx context.Context, region string, rt models.ResourceType, token string) (Page, error) {
	key := region + "/" + string(rt)
	f.mu.Lock()
	f.calls = append(f.calls, key+"@"+token)
	err, block, loop := f.fail[key], f.block[key], f.tokens[key]
	f.mu.Unlock()

	if block {
		f.entered <- key
		<-ctx.Done()
		return Page{}, ctx.Err()
	}
	if err != nil {
		return Page{}, err
	}
	if loop != "" {
		return Page{NextToken: loop}, nil
	}

	id := func(base string) string { return base + "-" + region }
	var page Page
	switch rt {
	case models.TypeVPC:
		page.Nodes = []models.ResourceNode{{ProviderID: id("vpc"), Type: models.TypeVPC, Name: "vpc", Region: region}}
	case models.TypeSubnet:
		if token == "" {
			page.Nodes = []models.ResourceNode{{ProviderID: id("subnet-a"), Type: models.TypeSubnet, Name: "a", Region: region}}
			page.Edges = []models.ResourceEdge{{FromProviderID: id("subnet-a"), ToProviderID: id("vpc"), Relation: models.RelationContains}}
			page.NextToken = "2"
		} else {
			page.Nodes = []models.ResourceNode{{ProviderID: id("subnet-b"), Type: models.TypeSubnet, Name: "b", Region: region}}
		}
	case models.TypeEC2:
		page.Nodes = []models.ResourceNode{{ProviderID: id("i"), Type: models.TypeEC2, Name: "app", Region: region, CostEstimate: decimal.NewFromInt(30)}}
		page.Edges = []models.ResourceEdge{{FromProviderID: id("i"), ToProviderID: id("subnet-a"), Relation: models.RelationContains}}
	case models.TypeS3:
		page.Nodes = []models.ResourceNode{{ProviderID: "bucket", Type: models.TypeS3, Name: "bucket", Region: region, CostEstimate: decimal.NewFromInt(2)}}
	}
	return page, nil
}

func (f *fakeProvider) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// progressRuns records every progress value written
type progressRuns struct {
	store.Runs
	mu       sync.Mutex
	progress []int
}

func (r *progressRuns) Update(ctx context.Context, run models.DiscoveryRun) error {
	r.mu.Lock()
	r.progress = append(r.progress, run.Progress)
	r.mu.Unlock()
	return r.Runs.Update(ctx, run)
}

func (r *progressRuns) values() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.progress...)
}

type harness struct {
	mem      *store.Memory
	graph    *graph.Store
	runs     *progressRuns
	provider *fakeProvider
	orch     *Orchestrator
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.Projects().Create(context.Background(), models.Project{ID: "p1", Name: "demo"}))
	g := graph.NewStore(mem.Graph())
	runs := &progressRuns{Runs: mem.Runs()}
	p := newFakeProvider()
	factory := ProviderFactoryFunc(func(context.Context, Target) (Provider, error) { return p, nil })
	engine := cost.NewEngine(mem.Projects(), g, mem.Snapshots(), logger.Nop())
	orch := NewOrchestrator(mem.Projects(), runs, g, factory, engine, audit.NewRecorder(mem.Audit(), logger.Nop()), cfg, logger.Nop())
	return &harness{mem: mem, graph: g, runs: runs, provider: p, orch: orch}
}

func (h *harness) start(t *testing.T, regions ...string) models.DiscoveryRun {
	t.Helper()
	ctx := context.Background()
	run, err := h.orch.Create(ctx, "p1", CreateRequest{Provider: "AWS", Regions: regions})
	require.NoError(t, err)
	running, err := h.orch.Execute(ctx, "p1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DiscoveryRunning, running.Status)
	return running
}

func (h *harness) wait(t *testing.T, runID string) models.DiscoveryRun {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := h.orch.Wait(ctx, "p1", runID)
	require.NoError(t, err)
	return run
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name      string
		projectID string
		req       CreateRequest
		wantErr   error
		regions   []string
	}{
		{name: "dedup and trim", projectID: "p1", req: CreateRequest{Provider: "aws", Regions: []string{" us-east-1", "us-east-1 ", "", "eu-west-1"}}, regions: []string{"us-east-1", "eu-west-1"}},
		{name: "unknown project", projectID: "nope", req: CreateRequest{Provider: "AWS", Regions: []string{"us-east-1"}}, wantErr: apperr.ErrNotFound},
		{name: "unsupported provider", projectID: "p1", req: CreateRequest{Provider: "GCP", Regions: []string{"us-east-1"}}, wantErr: apperr.ErrValidation},
		{name: "no regions", projectID: "p1", req: CreateRequest{Provider: "AWS", Regions: []string{" ", ""}}, wantErr: apperr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			run, err := h.orch.Create(context.Background(), tt.projectID, tt.req)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.regions, run.Regions)
			assert.Equal(t, models.DiscoveryCreated, run.Status)
			assert.Equal(t, models.ProviderAWS, run.Provider)
			assert.Nil(t, run.FinishedAt)
		})
	}
}

func TestExecute_Completes(t *testing.T) {
	h := newHarness(t, Config{TypeConcurrency: 1})
	run := h.start(t, "us-east-1", "us-east-1", "eu-west-1")
	done := h.wait(t, run.ID)

	assert.Equal(t, models.DiscoveryCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.NotNil(t, done.FinishedAt)
	assert.Empty(t, done.Error)
	assert.Equal(t, 9, done.NodesDiscovered)
	assert.Equal(t, 4, done.EdgesDiscovered)

	nodes, err := h.graph.ListNodes(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, nodes, 9)
	for _, n := range nodes {
		assert.Equal(t, run.ID, n.DiscoveryRunID)
	}

	assert.Equal(t, 1, h.provider.callCount("us-east-1/S3"))
	assert.Equal(t, 0, h.provider.callCount("eu-west-1/S3"))
	assert.Equal(t, 2, h.provider.callCount("us-east-1/SUBNET"))

	snap, ok, err := h.mem.Snapshots().Latest(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "62.00", snap.TotalCost.StringFixed(2))

	events, err := h.mem.Audit().List(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.AuditDiscoveryCompleted, events[0].Action)
}

func TestExecute_ProgressIsMonotonic(t *testing.T) {
	h := newHarness(t, Config{TypeConcurrency: 3})
	run := h.start(t, "us-east-1", "eu-west-1", "ap-south-1")
	h.wait(t, run.ID)

	values := h.runs.values()
	require.NotEmpty(t, values)
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1], "progress went backwards: %v", values)
	}
	assert.Equal(t, 100, values[len(values)-1])
	for _, v := range values[:len(values)-1] {
		assert.Less(t, v, 100)
	}
}

func TestExecute_OnlyFromCreated(t *testing.T) {
	h := newHarness(t, Config{})
	run := h.start(t, "us-east-1")
	h.wait(t, run.ID)

	_, err := h.orch.Execute(context.Background(), "p1", run.ID)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))

	_, err = h.orch.Execute(context.Background(), "p1", "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestExecute_FailureKeepsPartialGraph(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.fail["eu-west-1/EC2"] = fmt.Errorf("%w: DescribeInstances: throttled", apperr.ErrProvider)

	run := h.start(t, "us-east-1", "eu-west-1")
	done := h.wait(t, run.ID)

	assert.Equal(t, models.DiscoveryFailed, done.Status)
	assert.Equal(t, "region=eu-west-1 type=EC2: provider error: DescribeInstances: throttled", done.Error)
	assert.Less(t, done.Progress, 100)
	assert.NotNil(t, done.FinishedAt)

	nodes, err := h.graph.ListNodes(context.Background(), "p1")
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, n := range nodes {
		ids[n.ProviderID] = true
	}
	assert.True(t, ids["i-us-east-1"])
	assert.True(t, ids["vpc-eu-west-1"])
	assert.False(t, ids["i-eu-west-1"])

	events, err := h.mem.Audit().List(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.AuditDiscoveryFailed, events[0].Action)

	_, ok, err := h.mem.Snapshots().Latest(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecute_RepeatedTokenFails(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.tokens["us-east-1/SG"] = "same"

	run := h.start(t, "us-east-1")
	done := h.wait(t, run.ID)

	assert.Equal(t, models.DiscoveryFailed, done.Status)
	assert.Contains(t, done.Error, "region=us-east-1 type=SG")
	assert.Contains(t, done.Error, `repeated page token "same"`)
}

func TestExecute_CallTimeout(t *testing.T) {
	h := newHarness(t, Config{CallTimeout: 20 * time.Millisecond})
	h.provider.block["us-east-1/RDS"] = true

	run := h.start(t, "us-east-1")
	done := h.wait(t, run.ID)

	assert.Equal(t, models.DiscoveryFailed, done.Status)
	assert.Contains(t, done.Error, "region=us-east-1 type=RDS")
	assert.Contains(t, done.Error, context.DeadlineExceeded.Error())
}

func TestExecute_RunTimeout(t *testing.T) {
	h := newHarness(t, Config{RunTimeout: 30 * time.Millisecond, CallTimeout: time.Minute})
	h.provider.block["us-east-1/ELB"] = true

	run := h.start(t, "us-east-1")
	done := h.wait(t, run.ID)

	assert.Equal(t, models.DiscoveryFailed, done.Status)
	assert.Contains(t, done.Error, "run timed out")
}

func TestExecute_ProviderSetupFails(t *testing.T) {
	h := newHarness(t, Config{})
	h.orch.factory = ProviderFactoryFunc(func(context.Context, Target) (Provider, error) {
		return nil, fmt.Errorf("%w: AccessDenied", apperr.ErrProvider)
	})

	run := h.start(t, "us-east-1")
	done := h.wait(t, run.ID)

	assert.Equal(t, models.DiscoveryFailed, done.Status)
	assert.Contains(t, done.Error, "provider setup")
	assert.Equal(t, 0, done.Progress)
}

func TestCancel_Running(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.block["us-east-1/EC2"] = true

	run := h.start(t, "us-east-1")
	select {
	case <-h.provider.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("provider never reached EC2")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := h.orch.Status(context.Background(), "p1", run.ID)
			assert.NoError(t, err)
		}
	}()

	cancelled, err := h.orch.Cancel(context.Background(), "p1", run.ID)
	require.NoError(t, err)
	wg.Wait()

	assert.Equal(t, models.DiscoveryCancelled, cancelled.Status)
	assert.Less(t, cancelled.Progress, 100)
	assert.NotNil(t, cancelled.FinishedAt)

	status, err := h.orch.Status(context.Background(), "p1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, cancelled.Progress, status.Progress)

	nodes, err := h.graph.ListNodes(context.Background(), "p1")
	require.NoError(t, err)
	assert.NotEmpty(t, nodes)

	_, err = h.orch.Cancel(context.Background(), "p1", run.ID)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestCancel_Created(t *testing.T) {
	h := newHarness(t, Config{})
	run, err := h.orch.Create(context.Background(), "p1", CreateRequest{Provider: "AWS", Regions: []string{"us-east-1"}})
	require.NoError(t, err)

	cancelled, err := h.orch.Cancel(context.Background(), "p1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DiscoveryCancelled, cancelled.Status)

	_, err = h.orch.Execute(context.Background(), "p1", run.ID)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestStatus(t *testing.T) {
	h := newHarness(t, Config{})
	run, err := h.orch.Create(context.Background(), "p1", CreateRequest{Provider: "AWS", Regions: []string{"us-east-1"}})
	require.NoError(t, err)

	status, err := h.orch.Status(context.Background(), "p1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusView{ID: run.ID, Status: models.DiscoveryCreated}, status)

	_, err = h.orch.Status(context.Background(), "p2", run.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	runs, err := h.orch.List(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestConcurrentRunsMerge(t *testing.T) {
	h := newHarness(t, Config{TypeConcurrency: 2})
	a := h.start(t, "us-east-1")
	b := h.start(t, "us-east-1")
	h.wait(t, a.ID)
	h.wait(t, b.ID)

	nodes, err := h.graph.ListNodes(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, nodes, 5)
	edges, err := h.graph.ListEdges(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestShutdown(t *testing.T) {
	h := newHarness(t, Config{})
	h.provider.block["us-east-1/VPC"] = true
	run := h.start(t, "us-east-1")
	<-h.provider.entered

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.orch.Shutdown(ctx))

	stored, err := h.mem.Runs().Get(context.Background(), "p1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DiscoveryCancelled, stored.Status)
}
