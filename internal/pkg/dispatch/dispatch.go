// Package dispatch 以有限并发执行一组任务，并按输入顺序返回全部结果。
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidLimit = errors.New("dispatch: concurrency limit must be at least 1")
	ErrWorkerPanic  = errors.New("dispatch: worker panicked")
)

// Worker 处理第 index 个元素。worker 应自行把失败转换为 R，不要 panic
type Worker[T, R any] func(ctx context.Context, item T, index int) R

// Fallback 为无法由 worker 产出结果的元素生成结果：worker panic（err 包装 ErrWorkerPanic），
// 或 ctx 取消后尚未领取的元素（err 为 ctx.Err()）
type Fallback[R any] func(index int, err error) R

// RunBounded 启动 min(limit, len(items)) 条 lane，每条 lane 从共享游标领取下一个下标直到耗尽。
// 返回切片与 items 等长且下标一一对应，与完成顺序无关。
//
// ctx 被取消后不再领取新元素，已在执行的 worker 自行观察 ctx；未领取的元素交给 fallback。
// 返回的 error 仅为 ErrInvalidLimit 或 ctx.Err()，结果切片在 ctx 取消时依然完整。
func RunBounded[T, R any](ctx context.Context, limit int, items []T, worker Worker[T, R], fallback Fallback[R]) ([]R, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}

	lanes := limit
	if lanes > len(items) {
		lanes = len(items)
	}

	var cursor atomic.Int64
	claim := func() (int, bool) {
		i := int(cursor.Add(1) - 1)
		return i, i < len(items)
	}

	var g errgroup.Group
	for lane := 0; lane < lanes; lane++ {
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					return nil
				}
				i, ok := claim()
				if !ok {
					return nil
				}
				results[i] = runOne(ctx, items[i], i, worker, fallback)
			}
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		// 取消后剩余的下标由这里统一补齐
		for {
			i, ok := claim()
			if !ok {
				break
			}
			if fallback != nil {
				results[i] = fallback(i, err)
			}
		}
		return results, err
	}

	return results, nil
}

func runOne[T, R any](ctx context.Context, item T, index int, worker Worker[T, R], fallback Fallback[R]) (result R) {
	defer func() {
		if p := recover(); p != nil {
			if fallback != nil {
				result = fallback(index, fmt.Errorf("%w: %v", ErrWorkerPanic, p))
			}
		}
	}()
	return worker(ctx, item, index)
}
