package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// CallObserver はIdP呼び出しの所要時間を記録する。
type CallObserver interface {
	ObserveIdentityCall(provider string, d time.Duration, err error)
}

// Offloader はIdPへのブロッキング呼び出しを同時実行数とタイムアウトで制限して実行する。
// リクエスト処理のgoroutineが外部呼び出しで無制限に積み上がらないようにする。
type Offloader struct {
	sem      *semaphore.Weighted
	timeout  time.Duration
	observer CallObserver
}

// NewOffloader はOffloaderを生成する。maxConcurrentが1未満の場合は1として扱う。
func NewOffloader(maxConcurrent int, timeout time.Duration, observer CallObserver) *Offloader {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Offloader{
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		timeout:  timeout,
		observer: observer,
	}
}

// Do は空きスロットを待ってfnを実行する。待機中にctxがキャンセルされた場合はfnを呼ばない。
func (o *Offloader) Do(ctx context.Context, provider string, fn func(ctx context.Context) error) error {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%s call not started: %w", provider, err)
	}
	defer o.sem.Release(1)

	callCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(callCtx)
	if o.observer != nil {
		o.observer.ObserveIdentityCall(provider, time.Since(start), err)
	}
	return err
}

// offload は戻り値を持つ呼び出しをOffloader経由で実行する。
func offload[T any](ctx context.Context, o *Offloader, provider string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := o.Do(ctx, provider, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}
