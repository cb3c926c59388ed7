package junction

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/service"
)

const (
	JunctionServiceName      = "microsim.junction.v1.JunctionService"
	GetIntersectionProcedure = "/" + JunctionServiceName + "/GetIntersection"
)

type GetIntersectionRequest struct {
	ID int32 `json:"id"`
}

// 转向灯色
type TurnLight struct {
	Turn  int32  `json:"turn"`
	Light string `json:"light"`
}

type GetIntersectionResponse struct {
	Intersection schema.IntersectionRecord `json:"intersection"`
	Lights       []TurnLight               `json:"lights"`
}

// Register 将Junction管理器注册到RPC服务
// 参数：server-RPC服务，opts-附加的处理器选项（如加锁拦截器）
func (m *JunctionManager) Register(server *service.Server, opts ...connect.HandlerOption) {
	server.Register(
		JunctionServiceName,
		func(hopts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			mux := http.NewServeMux()
			mux.Handle(GetIntersectionProcedure, service.Unary(GetIntersectionProcedure, m.GetIntersection, hopts...))
			return "/" + JunctionServiceName + "/", mux
		},
		opts...,
	)
}

// GetIntersection RPC接口：获取指定路口的相位、预约、排队与各转向灯色
// 说明：如果路口不存在则返回NotFound
func (m *JunctionManager) GetIntersection(ctx context.Context, in *GetIntersectionRequest) (*GetIntersectionResponse, error) {
	j, ok := m.data[in.ID]
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("junction id %d does not exist", in.ID))
	}
	return &GetIntersectionResponse{
		Intersection: j.record(),
		Lights: lo.Map(j.turnList, func(l entity.ILane, _ int) TurnLight {
			return TurnLight{Turn: l.ID(), Light: l.Light().String()}
		}),
	}, nil
}
