package clock

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/tsinghua-fib-lab/microsim/utils/service"
)

const (
	ClockServiceName = "microsim.clock.v1.ClockService"
	NowProcedure     = "/" + ClockServiceName + "/Now"
)

type NowRequest struct{}

type NowResponse struct {
	Step int32   `json:"step"`
	T    float64 `json:"t"`
	// HH:MM:SS
	Clock string `json:"clock"`
}

// Register 将时钟服务注册到RPC服务
// 参数：server-RPC服务，opts-附加的处理器选项（如加锁拦截器）
func (c *Clock) Register(server *service.Server, opts ...connect.HandlerOption) {
	server.Register(
		ClockServiceName,
		func(hopts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			return NowProcedure, service.Unary(NowProcedure, c.Now, hopts...)
		},
		opts...,
	)
}

// Now 获取当前仿真步数与时间
func (c *Clock) Now(ctx context.Context, in *NowRequest) (*NowResponse, error) {
	return &NowResponse{
		Step:  c.InternalStep,
		T:     c.T,
		Clock: c.String(),
	}, nil
}
