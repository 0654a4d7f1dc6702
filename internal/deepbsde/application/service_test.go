package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/wyfcoding/deepbsde/internal/deepbsde/domain"
)

// fakeRunRepo 内存写模型仓储
type fakeRunRepo struct {
	mu      sync.Mutex
	runs    map[string]*domain.TrainingRun
	order   []string
	samples map[string][]*domain.LossSample
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{
		runs:    make(map[string]*domain.TrainingRun),
		samples: make(map[string][]*domain.LossSample),
	}
}

func (r *fakeRunRepo) Save(_ context.Context, run *domain.TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; !ok {
		r.order = append(r.order, run.ID)
	}
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *fakeRunRepo) GetByID(_ context.Context, id string) (*domain.TrainingRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (r *fakeRunRepo) ListRecent(_ context.Context, limit int) ([]*domain.TrainingRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.TrainingRun, 0, limit)
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *r.runs[r.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRunRepo) SaveLossSamples(_ context.Context, samples []*domain.LossSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range samples {
		cp := *s
		r.samples[s.RunID] = append(r.samples[s.RunID], &cp)
	}
	return nil
}

func (r *fakeRunRepo) ListLossSamples(_ context.Context, runID string) ([]*domain.LossSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.LossSample(nil), r.samples[runID]...), nil
}

// fakePublisher 记录已发布事件
type fakePublisher struct {
	mu        sync.Mutex
	started   []domain.TrainingRunStartedEvent
	completed []domain.TrainingRunCompletedEvent
	failed    []domain.TrainingRunFailedEvent
}

func (p *fakePublisher) PublishTrainingRunStarted(_ context.Context, e domain.TrainingRunStartedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, e)
	return nil
}

func (p *fakePublisher) PublishTrainingRunCompleted(_ context.Context, e domain.TrainingRunCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, e)
	return nil
}

func (p *fakePublisher) PublishTrainingRunFailed(_ context.Context, e domain.TrainingRunFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, e)
	return nil
}

func smallCommand() RunTrainingCommand {
	return RunTrainingCommand{
		Dim:          2,
		BatchSize:    2,
		NumTimesteps: 3,
		T0:           0,
		Dt:           0.2,
		Width:        4,
		Depth:        1,
		LearningRate: 1e-3,
		NumIters:     3,
		Seed:         42,
	}
}

func TestRunTrainingCompletesAndPersists(t *testing.T) {
	repo := newFakeRunRepo()
	pub := &fakePublisher{}
	svc := NewSolverService(repo, nil, pub, nil)
	ctx := context.Background()

	runID, err := svc.RunTraining(ctx, smallCommand())
	if err != nil {
		t.Fatal(err)
	}
	if runID == "" {
		t.Fatal("empty run id")
	}

	run, err := svc.GetRun(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if run == nil {
		t.Fatal("run not persisted")
	}
	if run.Status != domain.RunStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", run.Status)
	}
	if run.NoiseDim != 2 {
		t.Errorf("noise dim = %d, want defaulted to dim", run.NoiseDim)
	}
	if run.ParamCount <= 0 || run.StepFlops <= 0 {
		t.Errorf("cost profile missing: params %d, flops %v", run.ParamCount, run.StepFlops)
	}
	if run.FinalLoss.IsZero() {
		t.Error("final loss not recorded")
	}

	samples, err := svc.GetLossHistory(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 3 {
		t.Errorf("loss samples = %d, want 3", len(samples))
	}
	for i, s := range samples {
		if s.Iter != i {
			t.Errorf("sample %d has iter %d", i, s.Iter)
		}
	}

	if len(pub.started) != 1 || len(pub.completed) != 1 || len(pub.failed) != 0 {
		t.Errorf("events started/completed/failed = %d/%d/%d, want 1/1/0",
			len(pub.started), len(pub.completed), len(pub.failed))
	}
	if pub.completed[0].RunID != runID {
		t.Errorf("completed event run id = %s, want %s", pub.completed[0].RunID, runID)
	}
}

func TestRunTrainingDeterministicAcrossSeeds(t *testing.T) {
	run := func() string {
		repo := newFakeRunRepo()
		svc := NewSolverService(repo, nil, &fakePublisher{}, nil)
		id, err := svc.RunTraining(context.Background(), smallCommand())
		if err != nil {
			t.Fatal(err)
		}
		r, _ := svc.GetRun(context.Background(), id)
		return r.FinalLoss.String()
	}
	if a, b := run(), run(); a != b {
		t.Errorf("same seed gave different final losses: %s vs %s", a, b)
	}
}

func TestRunTrainingRejectsInvalidConfig(t *testing.T) {
	svc := NewSolverService(newFakeRunRepo(), nil, &fakePublisher{}, nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*RunTrainingCommand)
	}{
		{"zero batch", func(c *RunTrainingCommand) { c.BatchSize = 0 }},
		{"zero iters", func(c *RunTrainingCommand) { c.NumIters = 0 }},
		{"zero dim", func(c *RunTrainingCommand) { c.Dim = 0 }},
		{"negative dt", func(c *RunTrainingCommand) { c.Dt = -0.1 }},
		{"zero width", func(c *RunTrainingCommand) { c.Width = 0 }},
		{"zero lr", func(c *RunTrainingCommand) { c.LearningRate = 0 }},
	}
	for _, c := range cases {
		cmd := smallCommand()
		c.mutate(&cmd)
		if _, err := svc.RunTraining(ctx, cmd); !errors.Is(err, domain.ErrInvalidConfig) {
			t.Errorf("%s: err = %v, want ErrInvalidConfig", c.name, err)
		}
	}
}

func TestRunTrainingRejectsMismatchedX0BeforeSideEffects(t *testing.T) {
	// 配置错误必须在任何持久化或事件发布之前被拒绝，
	// 不得留下一个永远 RUNNING 的任务
	repo := newFakeRunRepo()
	pub := &fakePublisher{}
	svc := NewSolverService(repo, nil, pub, nil)

	cmd := smallCommand()
	cmd.X0 = []float64{1.0}
	if _, err := svc.RunTraining(context.Background(), cmd); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}

	runs, err := svc.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("config error persisted %d run(s), first status %s", len(runs), runs[0].Status)
	}
	if len(pub.started) != 0 || len(pub.failed) != 0 {
		t.Errorf("config error published events: started %d, failed %d", len(pub.started), len(pub.failed))
	}
}

func TestCancelledRunMarkedFailed(t *testing.T) {
	// 训练中断后任务必须落为 FAILED 并发布失败事件，而非停留在 RUNNING
	repo := newFakeRunRepo()
	pub := &fakePublisher{}
	svc := NewSolverService(repo, nil, pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runID, err := svc.RunTraining(ctx, smallCommand())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if runID == "" {
		t.Fatal("cancelled run should still return its id")
	}

	run, err := svc.GetRun(context.Background(), runID)
	if err != nil {
		t.Fatal(err)
	}
	if run == nil {
		t.Fatal("cancelled run not persisted")
	}
	if run.Status != domain.RunStatusFailed {
		t.Errorf("status = %s, want FAILED", run.Status)
	}
	if run.FailureReason == "" {
		t.Error("failure reason not recorded")
	}
	if len(pub.failed) != 1 {
		t.Errorf("failed events = %d, want 1", len(pub.failed))
	}
}

func TestRunTrainingCustomX0(t *testing.T) {
	repo := newFakeRunRepo()
	svc := NewSolverService(repo, nil, &fakePublisher{}, nil)

	cmd := smallCommand()
	cmd.X0 = []float64{2.0, -1.0}
	if _, err := svc.RunTraining(context.Background(), cmd); err != nil {
		t.Fatal(err)
	}
}

func TestListRunsMostRecentFirst(t *testing.T) {
	repo := newFakeRunRepo()
	svc := NewSolverService(repo, nil, &fakePublisher{}, nil)
	ctx := context.Background()

	first, err := svc.RunTraining(ctx, smallCommand())
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.RunTraining(ctx, smallCommand())
	if err != nil {
		t.Fatal(err)
	}

	runs, err := svc.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].ID != second || runs[1].ID != first {
		t.Errorf("order = [%s %s], want [%s %s]", runs[0].ID, runs[1].ID, second, first)
	}
}
