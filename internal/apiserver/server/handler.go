// Package server 路由配置与核心基础设施
//
// 本文件定义 HTTP API 路由，将请求分发到各领域独立包。
// 仍保留在本包的模块：
//   - common.go: 通用工具函数与健康检查
//   - metrics.go: Prometheus 指标
package server

import (
	"net/http"

	"account-admin/internal/apiserver/auth"
	"account-admin/internal/apiserver/user"
	"account-admin/internal/shared/cache"
	"account-admin/internal/shared/email"
	"account-admin/internal/shared/storage"
	"account-admin/pkg/logging"
)

// Handler API 处理器
//
// Handler 是所有 HTTP API 的入口，负责：
//   - 路由请求到对应的处理函数
//   - 管理存储层连接
//   - 装配认证、限流与邮件依赖
type Handler struct {
	store   storage.PersistentStore // 持久化业务数据
	authCfg auth.Config             // 认证配置
	limiter cache.Cache             // 限流缓存，未配置时为 NoOp
	mailer  email.Sender            // 重置邮件发送
	logger  *logging.Logger         // 访问日志
	metrics *Metrics                // Prometheus 指标
}

// NewHandler 创建 Handler 实例
func NewHandler(store storage.PersistentStore, authCfg auth.Config, limiter cache.Cache, mailer email.Sender) *Handler {
	if limiter == nil {
		limiter = cache.NewNoOpCache()
	}
	logger := logging.Default("api")
	metrics := NewMetrics("account")
	return &Handler{
		// 存储层包一层指标装饰器
		store:   newInstrumentedStore(store, metrics, logger),
		authCfg: authCfg,
		limiter: limiter,
		mailer:  mailer,
		logger:  logger,
		metrics: metrics,
	}
}

// GetMetrics 返回指标实例
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 健康检查:
//   - GET /health - 服务健康检查
//   - GET /metrics - Prometheus 指标
//
// 认证 (Auth):
//   - POST  /api/v1/auth/register              - 注册
//   - POST  /api/v1/auth/login                 - 登录
//   - POST  /api/v1/auth/forgot-password       - 发起找回密码
//   - PATCH /api/v1/auth/reset-password/{token} - 重置密码
//   - PATCH /api/v1/auth/update-password       - 修改密码（需登录）
//   - GET   /api/v1/auth/me                    - 当前用户（需登录）
//
// 用户管理 (User):
//   - PATCH  /api/v1/users/update-me  - 更新个人资料（需登录）
//   - DELETE /api/v1/users/delete-me  - 注销账号（需登录）
//   - GET    /api/v1/users            - 列出用户（管理员）
//   - POST   /api/v1/users            - 创建用户（管理员）
//   - GET    /api/v1/users/{id}       - 查询用户（管理员）
//   - PATCH  /api/v1/users/{id}       - 更新用户（管理员）
//   - DELETE /api/v1/users/{id}       - 删除用户（管理员）
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", h.Health)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", MetricsHandler())

	// Auth 接口
	authHandler := auth.NewHandler(h.store, h.authCfg, h.limiter, h.mailer)
	authHandler.SetMetrics(h.metrics)
	authHandler.RegisterRoutes(mux)

	// User 接口
	userHandler := user.NewHandler(h.store, h.authCfg)
	userHandler.RegisterRoutes(mux)

	// 应用指标中间件
	handler := h.metrics.Middleware(mux)

	// 应用访问日志中间件
	handler = h.logger.AccessLogMiddleware(handler)

	// 应用 CORS 中间件
	return corsMiddleware(handler)
}

// corsMiddleware 添加 CORS 头支持跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
