package agent

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils"
	"github.com/tsinghua-fib-lab/microsim/utils/service"
)

const (
	AgentServiceName    = "microsim.agent.v1.AgentService"
	GetAgentProcedure   = "/" + AgentServiceName + "/GetAgent"
	ListAgentsProcedure = "/" + AgentServiceName + "/ListAgents"
	GetTripProcedure    = "/" + AgentServiceName + "/GetTrip"
)

type GetAgentRequest struct {
	ID int32 `json:"id"`
}

type GetAgentResponse struct {
	Agent schema.AgentDetail `json:"agent"`
}

type ListAgentsRequest struct {
	// 为空时返回全部智能体
	IDs []int32 `json:"ids,omitempty"`
	// 为空时返回全部类型
	Kind schema.AgentKind `json:"kind,omitempty"`
}

type ListAgentsResponse struct {
	Agents []schema.AgentView `json:"agents"`
	// 不在场的ID
	MissingIDs []int32 `json:"missing_ids,omitempty"`
}

type GetTripRequest struct {
	ID int32 `json:"id"`
}

type GetTripResponse struct {
	Trip schema.TripRecord `json:"trip"`
}

// Register 将Agent管理器注册到RPC服务
// 参数：server-RPC服务，opts-附加的处理器选项（如加锁拦截器）
func (m *AgentManager) Register(server *service.Server, opts ...connect.HandlerOption) {
	server.Register(
		AgentServiceName,
		func(hopts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			mux := http.NewServeMux()
			mux.Handle(GetAgentProcedure, service.Unary(GetAgentProcedure, m.GetAgent, hopts...))
			mux.Handle(ListAgentsProcedure, service.Unary(ListAgentsProcedure, m.ListAgents, hopts...))
			mux.Handle(GetTripProcedure, service.Unary(GetTripProcedure, m.GetTrip, hopts...))
			return "/" + AgentServiceName + "/", mux
		},
		opts...,
	)
}

// GetAgent 获取智能体的完整状态
func (m *AgentManager) GetAgent(ctx context.Context, in *GetAgentRequest) (*GetAgentResponse, error) {
	d, err := m.Detail(in.ID)
	if err != nil {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	return &GetAgentResponse{Agent: d}, nil
}

// ListAgents 获取当前在场智能体的摘要
func (m *AgentManager) ListAgents(ctx context.Context, in *ListAgentsRequest) (*ListAgentsResponse, error) {
	all := m.Views()
	byID := lo.KeyBy(all, func(v schema.AgentView) int32 { return v.ID })
	views, missing := utils.Find(byID, all, in.IDs)
	if in.Kind != "" {
		views = lo.Filter(views, func(v schema.AgentView, _ int) bool { return v.Kind == in.Kind })
	}
	return &ListAgentsResponse{Agents: views, MissingIDs: missing}, nil
}

// GetTrip 获取出行状态
func (m *AgentManager) GetTrip(ctx context.Context, in *GetTripRequest) (*GetTripResponse, error) {
	r, err := m.TripStatus(in.ID)
	if err != nil {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	return &GetTripResponse{Trip: r}, nil
}
