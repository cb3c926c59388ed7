package transit

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/service"
)

const (
	TransitServiceName = "microsim.transit.v1.TransitService"
	GetStopProcedure   = "/" + TransitServiceName + "/GetStop"
	GetRouteProcedure  = "/" + TransitServiceName + "/GetRoute"
)

type GetStopRequest struct {
	ID int32 `json:"id"`
}

type GetStopResponse struct {
	Stop    schema.Stop `json:"stop"`
	Waiting []int32     `json:"waiting"`
}

type GetRouteRequest struct {
	ID int32 `json:"id"`
}

type GetRouteResponse struct {
	ID            int32         `json:"id"`
	Name          string        `json:"name"`
	Stops         []schema.Stop `json:"stops"`
	Path          []int32       `json:"path"`
	NextDeparture int32         `json:"next_departure"`
	Departures    []float64     `json:"departures"`
}

// Register 将公交管理器注册到RPC服务
func (m *TransitManager) Register(server *service.Server, opts ...connect.HandlerOption) {
	server.Register(
		TransitServiceName,
		func(hopts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			mux := http.NewServeMux()
			mux.Handle(GetStopProcedure, service.Unary(GetStopProcedure, m.GetStop, hopts...))
			mux.Handle(GetRouteProcedure, service.Unary(GetRouteProcedure, m.GetRoute, hopts...))
			return "/" + TransitServiceName + "/", mux
		},
		opts...,
	)
}

// GetStop 获取公交站与候车队列
func (m *TransitManager) GetStop(ctx context.Context, in *GetStopRequest) (*GetStopResponse, error) {
	s, ok := m.stops[in.ID]
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("stop id %d does not exist", in.ID))
	}
	r := s.record()
	return &GetStopResponse{Stop: s.base, Waiting: r.Waiting}, nil
}

// GetRoute 获取公交线路、行驶路径与发车进度
func (m *TransitManager) GetRoute(ctx context.Context, in *GetRouteRequest) (*GetRouteResponse, error) {
	l, ok := m.lines[in.ID]
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("route id %d does not exist", in.ID))
	}
	return &GetRouteResponse{
		ID:            l.id,
		Name:          l.name,
		Stops:         append([]schema.Stop(nil), l.stops...),
		Path:          l.Path(),
		NextDeparture: l.next,
		Departures:    append([]float64(nil), l.departures...),
	}, nil
}
