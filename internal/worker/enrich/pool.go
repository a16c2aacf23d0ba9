// Package enrich はアイデア作成時のバックグラウンドAI分析を実行するワーカープールを提供する。
//
// ジョブはリクエストから切り離されたコンテキストで実行され、
// ジョブごとに独立したタイムアウトを持つ。失敗はエラーチャネル経由でログに記録される。
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// デフォルト値
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 100
	DefaultTimeout   = 60 * time.Second
)

// Job はプールで実行する1件の分析ジョブ。
type Job struct {
	// IdeaID はログ出力用の対象アイデアID。
	IdeaID string
	// Run はジョブ本体。ctxはジョブ専用のタイムアウトを持つ。
	Run func(ctx context.Context) error
}

// JobError はジョブの失敗を表す。
type JobError struct {
	IdeaID string
	Err    error
}

// DropRecorder はキュー満杯によるジョブの破棄を記録する。
type DropRecorder interface {
	RecordEnrichDropped()
}

// Config はワーカープールの設定。
type Config struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Pool は固定数のワーカーでジョブを並列実行するプール。
// Submitはブロックせず、キューが満杯の場合はジョブを破棄する。
type Pool struct {
	config  Config
	logger  *slog.Logger
	metrics DropRecorder

	jobs chan Job
	errs chan JobError

	// ワーカーが使う親コンテキスト。Shutdownの猶予切れでキャンセルする。
	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu      sync.RWMutex
	started bool
	closed  bool

	workers   sync.WaitGroup
	drainDone chan struct{}
}

// NewPool はPoolを生成する。0以下の設定値はデフォルト値で補う。
// metricsはnilでもよい。ジョブの実行はStartを呼ぶまで始まらない。
func NewPool(config Config, logger *slog.Logger, metrics DropRecorder) *Pool {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config:     config,
		logger:     logger,
		metrics:    metrics,
		jobs:       make(chan Job, config.QueueSize),
		errs:       make(chan JobError, config.Workers),
		baseCtx:    baseCtx,
		cancelBase: cancel,
		drainDone:  make(chan struct{}),
	}
}

// Start はワーカーとエラー排出ゴルーチンを起動する。2回目以降の呼び出しは無視する。
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i := 0; i < p.config.Workers; i++ {
		p.workers.Add(1)
		go p.work()
	}
	go p.drainErrors()

	p.logger.Info("分析ワーカープールを開始しました",
		slog.Int("workers", p.config.Workers),
		slog.Int("queue_size", p.config.QueueSize),
		slog.Duration("timeout", p.config.Timeout),
	)
}

// Submit はジョブをキューに投入する。待機はしない。
// キューが満杯、またはShutdown済みの場合はジョブを破棄してfalseを返す。
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("停止済みのため分析ジョブを破棄しました",
			slog.String("idea_id", job.IdeaID),
		)
		return false
	}

	select {
	case p.jobs <- job:
		return true
	default:
		if p.metrics != nil {
			p.metrics.RecordEnrichDropped()
		}
		p.logger.Warn("キューが満杯のため分析ジョブを破棄しました",
			slog.String("idea_id", job.IdeaID),
			slog.Int("queue_size", p.config.QueueSize),
		)
		return false
	}
}

// Shutdown は新規ジョブの受付を止め、キューに残ったジョブと実行中のジョブの完了を待つ。
// ctxが先に終了した場合は実行中のジョブをキャンセルしてctx.Err()を返す。
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	close(p.jobs)
	p.mu.Unlock()

	if !started {
		p.cancelBase()
		return nil
	}

	go func() {
		p.workers.Wait()
		close(p.errs)
	}()

	select {
	case <-p.drainDone:
		p.cancelBase()
		p.logger.Info("分析ワーカープールを停止しました")
		return nil
	case <-ctx.Done():
		p.cancelBase()
		p.logger.Warn("分析ワーカープールの停止待ちがタイムアウトしました")
		return ctx.Err()
	}
}

// QueueLength はキューで待機中のジョブ数を返す。
func (p *Pool) QueueLength() int {
	return len(p.jobs)
}

func (p *Pool) work() {
	defer p.workers.Done()

	for job := range p.jobs {
		if err := p.run(job); err != nil {
			p.errs <- JobError{IdeaID: job.IdeaID, Err: err}
		}
	}
}

// run はジョブ専用のタイムアウトで1件実行する。panicはエラーに変換する。
func (p *Pool) run(job Job) (err error) {
	ctx, cancel := context.WithTimeout(p.baseCtx, p.config.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in enrich job: %v", r)
		}
	}()

	return job.Run(ctx)
}

func (p *Pool) drainErrors() {
	defer close(p.drainDone)

	for jobErr := range p.errs {
		p.logger.Error("バックグラウンド分析に失敗しました",
			slog.String("idea_id", jobErr.IdeaID),
			slog.String("error", jobErr.Err.Error()),
		)
	}
}
