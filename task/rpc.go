package task

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/service"
)

const (
	ControlServiceName     = "microsim.control.v1.ControlService"
	StepProcedure          = "/" + ControlServiceName + "/Step"
	SaveProcedure          = "/" + ControlServiceName + "/Save"
	RestoreProcedure       = "/" + ControlServiceName + "/Restore"
	CancelTripProcedure    = "/" + ControlServiceName + "/CancelTrip"
	CancelAgentProcedure   = "/" + ControlServiceName + "/CancelAgent"
	AgentsAtProcedure      = "/" + ControlServiceName + "/AgentsAt"
	GetStatisticsProcedure = "/" + ControlServiceName + "/GetStatistics"
)

type StepRequest struct {
	N int `json:"n"`
}

type StepResponse struct {
	Step int32   `json:"step"`
	T    float64 `json:"t"`
}

type SaveRequest struct{}

type SaveResponse struct {
	Snapshot *schema.Snapshot `json:"snapshot"`
}

type RestoreRequest struct {
	Snapshot *schema.Snapshot `json:"snapshot"`
}

type RestoreResponse struct {
	Step int32 `json:"step"`
}

type CancelRequest struct {
	ID int32 `json:"id"`
}

type CancelResponse struct{}

type AgentsAtRequest struct {
	Step int32 `json:"step"`
}

type AgentsAtResponse struct {
	Step   int32              `json:"step"`
	Agents []schema.AgentView `json:"agents"`
}

type GetStatisticsRequest struct{}

type GetStatisticsResponse struct {
	Statistics schema.Statistics `json:"statistics"`
}

// readLock 查询接口的读锁拦截器，与推进过程互斥
func (ctx *Context) readLock() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(c context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			ctx.mu.RLock()
			defer ctx.mu.RUnlock()
			return next(c, req)
		}
	}
}

// connectError 将引擎错误映射为RPC错误码
// 参数：def-无法识别时使用的错误码
func connectError(err error, def connect.Code) error {
	var violation *entity.ViolationError
	var loadErr *entity.ScenarioLoadError
	switch {
	case errors.Is(err, ErrNotLoaded), errors.As(err, &violation):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, ErrFutureStep), errors.As(err, &loadErr):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ErrStepEvicted):
		return connect.NewError(connect.CodeNotFound, err)
	}
	return connect.NewError(def, err)
}

// Register 将时钟、各管理器的查询服务与控制服务注册到RPC服务
// 说明：管理器的查询处理器持有读锁；控制服务的方法自行加锁
func (ctx *Context) Register(server *service.Server) {
	lock := connect.WithInterceptors(ctx.readLock())
	ctx.clock.Register(server, lock)
	ctx.agentManager.Register(server, lock)
	ctx.junctionManager.Register(server, lock)
	ctx.transitManager.Register(server, lock)
	server.Register(
		ControlServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			mux := http.NewServeMux()
			mux.Handle(StepProcedure, service.Unary(StepProcedure, ctx.StepRPC, opts...))
			mux.Handle(SaveProcedure, service.Unary(SaveProcedure, ctx.SaveRPC, opts...))
			mux.Handle(RestoreProcedure, service.Unary(RestoreProcedure, ctx.RestoreRPC, opts...))
			mux.Handle(CancelTripProcedure, service.Unary(CancelTripProcedure, ctx.CancelTripRPC, opts...))
			mux.Handle(CancelAgentProcedure, service.Unary(CancelAgentProcedure, ctx.CancelAgentRPC, opts...))
			mux.Handle(AgentsAtProcedure, service.Unary(AgentsAtProcedure, ctx.AgentsAtRPC, opts...))
			mux.Handle(GetStatisticsProcedure, service.Unary(GetStatisticsProcedure, ctx.GetStatistics, opts...))
			return "/" + ControlServiceName + "/", mux
		},
	)
}

// StepRPC 推进n步，返回推进后的步数
func (ctx *Context) StepRPC(c context.Context, in *StepRequest) (*StepResponse, error) {
	if in.N <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("n must be positive"))
	}
	if err := ctx.Step(in.N); err != nil {
		return nil, connectError(err, connect.CodeInternal)
	}
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return &StepResponse{Step: ctx.clock.InternalStep, T: ctx.clock.T}, nil
}

func (ctx *Context) SaveRPC(c context.Context, in *SaveRequest) (*SaveResponse, error) {
	snap, err := ctx.Save()
	if err != nil {
		return nil, connectError(err, connect.CodeInternal)
	}
	return &SaveResponse{Snapshot: snap}, nil
}

func (ctx *Context) RestoreRPC(c context.Context, in *RestoreRequest) (*RestoreResponse, error) {
	if in.Snapshot == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("snapshot is required"))
	}
	if err := ctx.Restore(in.Snapshot); err != nil {
		return nil, connectError(err, connect.CodeInvalidArgument)
	}
	return &RestoreResponse{Step: in.Snapshot.Step}, nil
}

func (ctx *Context) CancelTripRPC(c context.Context, in *CancelRequest) (*CancelResponse, error) {
	if err := ctx.CancelTrip(in.ID); err != nil {
		return nil, connectError(err, connect.CodeNotFound)
	}
	return &CancelResponse{}, nil
}

func (ctx *Context) CancelAgentRPC(c context.Context, in *CancelRequest) (*CancelResponse, error) {
	if err := ctx.CancelAgent(in.ID); err != nil {
		return nil, connectError(err, connect.CodeNotFound)
	}
	return &CancelResponse{}, nil
}

func (ctx *Context) AgentsAtRPC(c context.Context, in *AgentsAtRequest) (*AgentsAtResponse, error) {
	views, err := ctx.AgentsAt(in.Step)
	if err != nil {
		return nil, connectError(err, connect.CodeInternal)
	}
	return &AgentsAtResponse{Step: in.Step, Agents: views}, nil
}

func (ctx *Context) GetStatistics(c context.Context, in *GetStatisticsRequest) (*GetStatisticsResponse, error) {
	return &GetStatisticsResponse{Statistics: ctx.Statistics()}, nil
}
