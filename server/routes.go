package server

const (
	RouteLogin    = "/login"
	RouteCallback = "/callback"
	RouteHealth   = "/healthz"
	RouteSession  = "/sessions/{key}"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.standardMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.standardMiddleware(s.NoStoreMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteSession, ChainMiddleware(s.SessionHandler(), s.standardMiddleware(s.NoStoreMiddleware)...))
	s.RegisterRouteHandler("DELETE "+RouteSession, ChainMiddleware(s.RevokeHandler(), s.standardMiddleware(s.NoStoreMiddleware)...))
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
}
