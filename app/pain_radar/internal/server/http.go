package server

import (
	nethttp "net/http"
	"time"

	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/pain_radar/app/pain_radar/internal/service"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
)

// NewHTTPServer 注册研究任务路由
func NewHTTPServer(c *config.Config, s *service.ResearchService) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
	}
	if c.Server.Addr != "" {
		opts = append(opts, http.Address(c.Server.Addr))
	}
	if c.Server.Timeout != "" {
		if d, err := time.ParseDuration(c.Server.Timeout); err == nil {
			opts = append(opts, http.Timeout(d))
		}
	}

	srv := http.NewServer(opts...)
	r := srv.Route("/")
	r.POST("/v1/research", s.Research)
	r.GET("/v1/results/{id}", s.GetResult)

	srv.HandleFunc("/healthz", func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.Write([]byte("ok"))
	})
	return srv
}
