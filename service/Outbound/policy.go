// Package Outbound 所有对外调用（AI、转写、音频下载）的统一策略：超时、取消、错误分类，不重试
package Outbound

import (
	"context"
	"errors"
	"time"

	"github.com/abdul977/whimsical-idea-keeper/service/Errs"
)

const DefaultTimeout = 60 * time.Second

type Policy struct {
	Timeout time.Duration
}

func New(timeout time.Duration) Policy {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return Policy{Timeout: timeout}
}

// Do 在超时上下文中执行 fn，返回分类后的 *Errs.Error
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		return nil
	}
	return Classify(ctx, callCtx, op, err)
}

// Classify 父上下文被取消算 canceled，本次调用超时算 timeout，其余算上游错误
func Classify(parent, call context.Context, op string, err error) error {
	var appErr *Errs.Error
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case parent.Err() != nil && errors.Is(parent.Err(), context.Canceled):
		return Errs.Wrap(Errs.KindCanceled, op+" 已取消", err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(call.Err(), context.DeadlineExceeded):
		return Errs.Wrap(Errs.KindTimeout, op+" 超时", err)
	case errors.Is(err, context.Canceled):
		return Errs.Wrap(Errs.KindCanceled, op+" 已取消", err)
	default:
		return Errs.Wrap(Errs.KindUpstream, op+" 调用失败", err)
	}
}
