// Package service 基于connect的HTTP服务，各管理器通过Register挂载自己的RPC处理器
package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "service")

// JSONCodec 以JSON编解码普通Go结构体的connect编解码器
// 说明：注册名为"json"，替换connect默认的protojson编解码器
type JSONCodec struct{}

func (JSONCodec) Name() string {
	return "json"
}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// HandlerFactory 生成处理器的函数，返回路由前缀与处理器
type HandlerFactory func(opts ...connect.HandlerOption) (pattern string, handler http.Handler)

// Server RPC服务
type Server struct {
	mux *http.ServeMux
}

// New 创建RPC服务
func New() *Server {
	return &Server{mux: http.NewServeMux()}
}

// Register 注册一个服务的处理器
// 参数：opts-额外的处理器选项，如拦截器
func (s *Server) Register(name string, factory HandlerFactory, opts ...connect.HandlerOption) {
	pattern, handler := factory(append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)...)
	log.Debugf("register service %s at %s", name, pattern)
	s.mux.Handle(pattern, handler)
}

// Handler 返回HTTP处理器，用于测试或嵌入其他服务
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve 在指定地址上提供服务，ctx取消时优雅关闭
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("listen on %s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewClient 创建使用JSON编解码的connect客户端
func NewClient[Req, Res any](httpClient connect.HTTPClient, baseURL, procedure string) *connect.Client[Req, Res] {
	return connect.NewClient[Req, Res](httpClient, baseURL+procedure, connect.WithCodec(JSONCodec{}))
}

// Unary 以统一的方式构造一元处理器
func Unary[Req, Res any](procedure string, fn func(context.Context, *Req) (*Res, error), opts ...connect.HandlerOption) *connect.Handler {
	return connect.NewUnaryHandler(procedure, func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
		res, err := fn(ctx, req.Msg)
		if err != nil {
			return nil, err
		}
		return connect.NewResponse(res), nil
	}, opts...)
}
