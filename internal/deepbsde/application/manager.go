package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"
	"github.com/wyfcoding/pkg/logging"

	"github.com/wyfcoding/deepbsde/internal/deepbsde/domain"
	"github.com/wyfcoding/deepbsde/pkg/metrics"
	"github.com/wyfcoding/deepbsde/pkg/randstream"
)

// SolverManager 处理所有训练相关的写入操作（Commands）。
type SolverManager struct {
	runRepo   domain.TrainingRunRepository
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
}

// NewSolverManager 构造函数，metrics 可为 nil。
func NewSolverManager(runRepo domain.TrainingRunRepository, publisher domain.EventPublisher, m *metrics.Metrics) *SolverManager {
	return &SolverManager{runRepo: runRepo, publisher: publisher, metrics: m}
}

// RunTrainingCommand 启动一次训练的全部配置
type RunTrainingCommand struct {
	Dim          int
	NoiseDim     int
	BatchSize    int
	NumTimesteps int
	T0           float64
	Dt           float64
	Width        int
	Depth        int
	LearningRate float64
	NumIters     int
	Seed         uint64
	// X0 初始状态，为空时采用 [1.0, 0.5] 循环填充的默认起点
	X0 []float64
}

// defaultX0 生成 [1.0, 0.5, 1.0, 0.5, ...] 的默认初始状态
func defaultX0(dim int) []float64 {
	x0 := make([]float64, dim)
	for i := range x0 {
		if i%2 == 0 {
			x0[i] = 1.0
		} else {
			x0[i] = 0.5
		}
	}
	return x0
}

// RunTraining 执行一次完整训练并持久化结果。
// 配置错误在构造求解器时被拒绝；损失发散时任务标记为 FAILED 并发布失败事件。
func (m *SolverManager) RunTraining(ctx context.Context, cmd RunTrainingCommand) (string, error) {
	if cmd.BatchSize <= 0 {
		return "", fmt.Errorf("%w: batch size must be positive, got %d", domain.ErrInvalidConfig, cmd.BatchSize)
	}
	if cmd.NumIters <= 0 {
		return "", fmt.Errorf("%w: num iters must be positive, got %d", domain.ErrInvalidConfig, cmd.NumIters)
	}
	if len(cmd.X0) != 0 && len(cmd.X0) != cmd.Dim {
		return "", fmt.Errorf("%w: x0 length %d does not match dim %d", domain.ErrInvalidConfig, len(cmd.X0), cmd.Dim)
	}
	if cmd.NoiseDim == 0 {
		cmd.NoiseDim = cmd.Dim
	}

	rootKey := randstream.NewKey(cmd.Seed)
	initKey, trainKey := rootKey.Split()

	net, err := domain.NewNetwork(cmd.Dim, cmd.Width, cmd.Depth, initKey)
	if err != nil {
		return "", err
	}
	simCfg := domain.SimulatorConfig{
		Dim:          cmd.Dim,
		NoiseDim:     cmd.NoiseDim,
		NumTimesteps: cmd.NumTimesteps,
		T0:           cmd.T0,
		Dt:           cmd.Dt,
	}
	sim, err := domain.NewSimulator(simCfg, net, domain.BlackScholesBarenblatt(0.05, 0.4))
	if err != nil {
		return "", err
	}
	trainer, err := domain.NewTrainer(sim, domain.SquaredNormTerminal(), cmd.LearningRate)
	if err != nil {
		return "", err
	}

	x0 := cmd.X0
	if len(x0) == 0 {
		x0 = defaultX0(cmd.Dim)
	}
	x0s := make([][]float64, cmd.BatchSize)
	for i := range x0s {
		x0s[i] = x0
	}

	cost := domain.EstimateStepCost(net, simCfg)
	run := &domain.TrainingRun{
		ID:           fmt.Sprintf("%d", idgen.GenID()),
		Dim:          cmd.Dim,
		NoiseDim:     cmd.NoiseDim,
		BatchSize:    cmd.BatchSize,
		NumTimesteps: cmd.NumTimesteps,
		T0:           cmd.T0,
		Dt:           cmd.Dt,
		Width:        cmd.Width,
		Depth:        cmd.Depth,
		LearningRate: cmd.LearningRate,
		NumIters:     cmd.NumIters,
		Seed:         cmd.Seed,
		Status:       domain.RunStatusRunning,
		ParamCount:   cost.ParamCount,
		StepFlops:    cost.Flops,
	}
	if err := m.runRepo.Save(ctx, run); err != nil {
		return "", err
	}
	if err := m.publisher.PublishTrainingRunStarted(ctx, domain.TrainingRunStartedEvent{
		RunID:        run.ID,
		Dim:          run.Dim,
		BatchSize:    run.BatchSize,
		NumTimesteps: run.NumTimesteps,
		NumIters:     run.NumIters,
		StartedAt:    time.Now().UnixMilli(),
		OccurredOn:   time.Now(),
	}); err != nil {
		logging.Error(ctx, "Failed to publish training started event", "run_id", run.ID, "error", err)
	}

	if m.metrics != nil {
		m.metrics.TrainingRunsTotal.Inc()
		m.metrics.TrainingRunsActive.Inc()
		defer m.metrics.TrainingRunsActive.Dec()
	}

	start := time.Now()
	samples := make([]*domain.LossSample, 0, cmd.NumIters)
	var initialLoss, finalLoss, y0Estimate float64
	for iter := 0; iter < cmd.NumIters; iter++ {
		if err := ctx.Err(); err != nil {
			m.failRun(ctx, run, iter, err)
			return run.ID, err
		}

		iterKey, next := trainKey.Split()
		trainKey = next

		stepStart := time.Now()
		res, err := trainer.TrainStep(x0s, iterKey.SplitN(cmd.BatchSize))
		if m.metrics != nil {
			m.metrics.TrainStepsTotal.Inc()
			m.metrics.TrainStepDuration.Observe(time.Since(stepStart).Seconds())
		}
		if err != nil {
			m.failRun(ctx, run, iter, err)
			return run.ID, err
		}
		if iter == 0 {
			initialLoss = res.Loss
		}
		finalLoss = res.Loss
		if m.metrics != nil {
			m.metrics.TrainingLoss.Set(res.Loss)
		}
		y0Estimate = meanOf(res.Y0)
		samples = append(samples, &domain.LossSample{RunID: run.ID, Iter: iter, Loss: res.Loss})
	}

	run.Status = domain.RunStatusCompleted
	run.InitialLoss = decimal.NewFromFloat(initialLoss)
	run.FinalLoss = decimal.NewFromFloat(finalLoss)
	run.Y0Estimate = decimal.NewFromFloat(y0Estimate)
	run.DurationMs = time.Since(start).Milliseconds()
	if err := m.runRepo.Save(ctx, run); err != nil {
		return run.ID, err
	}
	if err := m.runRepo.SaveLossSamples(ctx, samples); err != nil {
		logging.Error(ctx, "Failed to save loss samples", "run_id", run.ID, "error", err)
	}

	if err := m.publisher.PublishTrainingRunCompleted(ctx, domain.TrainingRunCompletedEvent{
		RunID:       run.ID,
		InitialLoss: initialLoss,
		FinalLoss:   finalLoss,
		Y0Estimate:  y0Estimate,
		DurationMs:  run.DurationMs,
		CompletedAt: time.Now().UnixMilli(),
		OccurredOn:  time.Now(),
	}); err != nil {
		logging.Error(ctx, "Failed to publish training completed event", "run_id", run.ID, "error", err)
	}

	logging.Info(ctx, "Training run completed",
		"run_id", run.ID,
		"initial_loss", initialLoss,
		"final_loss", finalLoss,
		"y0_estimate", y0Estimate,
		"duration_ms", run.DurationMs,
	)
	return run.ID, nil
}

// failRun 将任务标记为失败并发布失败事件。
// 失败状态必须落库，即使触发失败的正是调用方取消，因此剥离取消信号。
func (m *SolverManager) failRun(ctx context.Context, run *domain.TrainingRun, iter int, cause error) {
	ctx = context.WithoutCancel(ctx)
	run.Status = domain.RunStatusFailed
	run.FailureReason = cause.Error()
	if err := m.runRepo.Save(ctx, run); err != nil {
		logging.Error(ctx, "Failed to persist failed run", "run_id", run.ID, "error", err)
	}
	if err := m.publisher.PublishTrainingRunFailed(ctx, domain.TrainingRunFailedEvent{
		RunID:      run.ID,
		Iter:       iter,
		Reason:     cause.Error(),
		FailedAt:   time.Now().UnixMilli(),
		OccurredOn: time.Now(),
	}); err != nil {
		logging.Error(ctx, "Failed to publish training failed event", "run_id", run.ID, "error", err)
	}
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}
