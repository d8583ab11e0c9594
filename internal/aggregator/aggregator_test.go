package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"portfolio-sync/internal/api"
	apperrors "portfolio-sync/internal/common/errors"
	"portfolio-sync/internal/common/logger"
	"portfolio-sync/internal/common/observability"
	"portfolio-sync/pkg/registry"
)

// ==========================
// Helpers
// ==========================

type fakeBackend struct {
	mu        sync.Mutex
	responses map[string]interface{}
	failures  map[string]error
	panics    map[string]bool
	blocks    map[string]chan struct{}
	requested []string
}

func createTestBackend() *fakeBackend {
	return &fakeBackend{
		responses: map[string]interface{}{},
		failures:  map[string]error{},
		panics:    map[string]bool{},
		blocks:    map[string]chan struct{}{},
	}
}

func (b *fakeBackend) Request(ctx context.Context, method, path string, body interface{}) (interface{}, error) {
	b.mu.Lock()
	b.requested = append(b.requested, path)
	block := b.blocks[path]
	resp, hasResp := b.responses[path]
	ferr := b.failures[path]
	shouldPanic := b.panics[path]
	b.mu.Unlock()

	if block != nil {
		<-block
	}
	if shouldPanic {
		panic("backend exploded")
	}
	if ferr != nil {
		return nil, ferr
	}
	if !hasResp {
		return nil, fmt.Errorf("404 %s", path)
	}
	return resp, nil
}

func (b *fakeBackend) paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]string(nil), b.requested...)
	sort.Strings(out)
	return out
}

func createTestAggregator(t *testing.T, client api.Client, opts Options) *Aggregator {
	t.Helper()
	return New(client, logger.NewTestLogger(t), opts)
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []*Snapshot
	err   error
}

func (s *recordingSink) Publish(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return s.err
}

// ==========================
// Aggregate
// ==========================

func TestAggregate_EndToEnd(t *testing.T) {
	backend := createTestBackend()
	backend.responses["/user/data"] = map[string]interface{}{"name": "Ana"}
	backend.responses["/service"] = []interface{}{map[string]interface{}{"id": 1.0, "title": "Web"}}
	backend.responses["/portfolio"] = map[string]interface{}{
		"projects": []interface{}{map[string]interface{}{"id": 7.0, "service_id": 1.0}},
	}

	agg := createTestAggregator(t, backend, Options{})
	snap, err := agg.Aggregate(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, "Ana", snap.Profile["name"])
	require.Len(t, snap.Portfolio.Projects, 1)
	assert.Equal(t, "Web", snap.Portfolio.Projects[0]["category"])
	assert.Equal(t, []string{"all", "Web"}, snap.Portfolio.Categories)

	// everything else 404s and degrades to empty values
	assert.Equal(t, Record{}, snap.Settings)
	assert.Equal(t, []Record{}, snap.Blog)
	assert.Equal(t, []Record{}, snap.Team)
	assert.Equal(t, []Record{}, snap.Certificates)
	assert.Equal(t, DefaultResumeOrder, snap.ResumeOrder)
	require.Len(t, snap.Resume, 3)
	for _, sec := range snap.Resume {
		assert.NotNil(t, sec.Data)
	}

	assert.False(t, snap.TimedOut)
	assert.False(t, snap.Authenticated)
	assert.Len(t, snap.Degraded, len(AllKeys)-3)
	assert.False(t, snap.IsDegraded(KeyProfile))
	assert.True(t, snap.IsDegraded(KeyBlog))

	assert.Equal(t, PhaseReady, agg.State().Phase)
	assert.Equal(t, 100, agg.Progress())
}

func TestAggregate_ScalarResumeLists(t *testing.T) {
	backend := createTestBackend()
	backend.responses["/skill"] = map[string]interface{}{"data": []interface{}{"Go", "Rust", "SQL"}}
	backend.responses["/education"] = map[string]interface{}{"educations": []interface{}{"MSc", "BSc"}}

	agg := createTestAggregator(t, backend, Options{})
	snap, err := agg.Aggregate(context.Background(), false)
	require.NoError(t, err)

	wantSkills := []Record{{ScalarField: "Go"}, {ScalarField: "Rust"}, {ScalarField: "SQL"}}
	assert.Equal(t, wantSkills, snap.Skills)
	assert.Equal(t, []Record{{ScalarField: "MSc"}, {ScalarField: "BSc"}}, snap.Education)

	require.Len(t, snap.Resume, 3)
	assert.Equal(t, "skills", snap.Resume[2].Type)
	assert.Equal(t, wantSkills, snap.Resume[2].Data)
}

func TestAggregate_Endpoints(t *testing.T) {
	tests := []struct {
		name          string
		authenticated bool
		want          []string
	}{
		{
			name: "public",
			want: []string{
				"/blog", "/certificate", "/education", "/experience", "/portfolio", "/resume",
				"/service", "/setting", "/skill", "/team", "/user/data",
			},
		},
		{
			name:          "admin",
			authenticated: true,
			want: []string{
				"/admin/blog", "/admin/certification", "/admin/education", "/admin/experience",
				"/admin/portfolio", "/admin/resume", "/admin/service", "/admin/setting",
				"/admin/skill", "/admin/team", "/admin/user",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := createTestBackend()
			agg := createTestAggregator(t, backend, Options{})

			snap, err := agg.Aggregate(context.Background(), tt.authenticated)
			require.NoError(t, err)
			assert.Equal(t, tt.authenticated, snap.Authenticated)
			assert.Equal(t, tt.want, backend.paths())
		})
	}
}

func TestAggregate_FailureIsolation(t *testing.T) {
	backend := createTestBackend()
	backend.responses["/skill"] = map[string]interface{}{"skills": []interface{}{map[string]interface{}{"name": "Go"}}}
	backend.responses["/team"] = []interface{}{map[string]interface{}{"name": "Leo"}}
	backend.panics["/blog"] = true
	backend.failures["/setting"] = errors.New("connection reset")

	agg := createTestAggregator(t, backend, Options{})
	snap, err := agg.Aggregate(context.Background(), false)
	require.NoError(t, err)

	assert.Len(t, snap.Skills, 1)
	assert.Len(t, snap.Team, 1)
	assert.Equal(t, []Record{}, snap.Blog)
	assert.Equal(t, Record{}, snap.Settings)
	assert.True(t, snap.IsDegraded(KeyBlog))
	assert.True(t, snap.IsDegraded(KeySettings))
	assert.False(t, snap.IsDegraded(KeySkills))
}

func TestAggregate_Deadline(t *testing.T) {
	backend := createTestBackend()
	release := make(chan struct{})
	defer close(release)
	backend.blocks["/skill"] = release
	backend.responses["/skill"] = []interface{}{map[string]interface{}{"name": "late"}}
	backend.responses["/education"] = []interface{}{map[string]interface{}{"degree": "MSc"}}

	var progress []int
	agg := createTestAggregator(t, backend, Options{
		Deadline:   50 * time.Millisecond,
		OnProgress: func(p int) { progress = append(progress, p) },
	})

	start := time.Now()
	snap, err := agg.Aggregate(context.Background(), false)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.True(t, snap.TimedOut)
	assert.True(t, snap.IsDegraded(KeySkills))
	assert.Equal(t, []Record{}, snap.Skills)
	assert.Len(t, snap.Education, 1)

	require.NotEmpty(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1])
	assert.Less(t, progress[len(progress)-2], 100)
}

func TestAggregate_ProgressMonotonic(t *testing.T) {
	var (
		mu     sync.Mutex
		values []int
	)
	agg := createTestAggregator(t, createTestBackend(), Options{
		OnProgress: func(p int) {
			mu.Lock()
			values = append(values, p)
			mu.Unlock()
		},
	})

	_, err := agg.Aggregate(context.Background(), false)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, values)
	assert.Equal(t, 10, values[0])
	assert.Equal(t, 100, values[len(values)-1])
	for i := 1; i < len(values); i++ {
		assert.Greater(t, values[i], values[i-1])
	}
}

func TestAggregate_NilClient(t *testing.T) {
	agg := createTestAggregator(t, nil, Options{})

	snap, err := agg.Aggregate(context.Background(), false)
	assert.Nil(t, snap)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAggregationFailed))

	st := agg.State()
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, err, st.Err)
	assert.Nil(t, agg.Current())
}

func TestAggregate_FailureKeepsPreviousSnapshot(t *testing.T) {
	backend := createTestBackend()
	backend.responses["/user/data"] = map[string]interface{}{"name": "Ana"}
	agg := createTestAggregator(t, backend, Options{})

	_, err := agg.Aggregate(context.Background(), false)
	require.NoError(t, err)

	agg.client = nil
	_, err = agg.Aggregate(context.Background(), false)
	require.Error(t, err)

	current := agg.Current()
	require.NotNil(t, current)
	assert.Equal(t, "Ana", current.Profile["name"])
}

func TestAggregate_Sink(t *testing.T) {
	sink := &recordingSink{}
	agg := createTestAggregator(t, createTestBackend(), Options{Sink: sink})

	snap, err := agg.Aggregate(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, sink.snaps, 1)
	assert.Equal(t, snap.GeneratedAt, sink.snaps[0].GeneratedAt)

	sink.err = errors.New("redis down")
	_, err = agg.Aggregate(context.Background(), true)
	assert.NoError(t, err)
	assert.Len(t, sink.snaps, 2)
}

func TestAggregate_CurrentIsACopy(t *testing.T) {
	backend := createTestBackend()
	backend.responses["/team"] = []interface{}{map[string]interface{}{"name": "Leo"}}
	agg := createTestAggregator(t, backend, Options{})

	snap, err := agg.Aggregate(context.Background(), false)
	require.NoError(t, err)

	snap.Team[0]["name"] = "mutated"
	snap.Degraded = append(snap.Degraded, "bogus")

	current := agg.Current()
	assert.Equal(t, "Leo", current.Team[0]["name"])
	assert.NotContains(t, current.Degraded, ResourceKey("bogus"))
}

func TestAggregate_Serialized(t *testing.T) {
	var inFlight, peak int32
	client := api.ClientFunc(func(ctx context.Context, method, path string, body interface{}) (interface{}, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return map[string]interface{}{}, nil
	})
	agg := createTestAggregator(t, client, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := agg.Aggregate(context.Background(), false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(len(AllKeys)))
}

func TestAggregate_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	obs := observability.New("aggregator-test",
		observability.WithRegisterer(promclient.NewRegistry()),
		observability.WithSpanProcessor(recorder),
	)
	defer obs.Shutdown()

	agg := createTestAggregator(t, createTestBackend(), Options{Observability: obs})
	_, err := agg.Aggregate(context.Background(), false)
	require.NoError(t, err)

	counts := map[string]int{}
	for _, s := range recorder.Ended() {
		counts[s.Name()]++
	}
	assert.Equal(t, 1, counts["aggregator.Aggregate"])
	assert.Equal(t, len(AllKeys), counts["aggregator.fetch"])
}

func TestAggregate_MockRegistry(t *testing.T) {
	reg, err := registry.Default()
	require.NoError(t, err)
	client := api.NewMockClient(api.MockClientOptions{Registry: reg}, logger.NewTestLogger(t))

	agg := createTestAggregator(t, client, Options{})
	snap, err := agg.Aggregate(context.Background(), false)
	require.NoError(t, err)

	assert.Empty(t, snap.Degraded)
	assert.Equal(t, "Ana Moreau", snap.Profile["name"])
	assert.Equal(t, "space", snap.Settings["theme"])

	categories := map[string]string{}
	for _, p := range snap.Portfolio.Projects {
		categories[p.String("title")] = p.String("category")
	}
	assert.Equal(t, "Web", categories["Storefront"])
	assert.Equal(t, "Mobile", categories["Fleet tracker"])
	assert.Equal(t, "Backend", categories["Billing API"])
	assert.Equal(t, []string{"all", "Web", "Mobile", "Backend"}, snap.Portfolio.Categories)

	assert.Equal(t, "/images/cka.png", snap.Certificates[0]["avatar"])
	assert.Equal(t, "/images/leo.jpg", snap.Team[0]["logo"])
	assert.Equal(t, "Why small releases win.", snap.Blog[0]["excerpt"])
}
