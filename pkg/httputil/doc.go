// Package httputil holds the small HTTP helpers shared by the federation
// handlers and the health server.
//
// Responses:
//
//	httputil.WriteJSON(w, http.StatusOK, principal)
//	httputil.WriteErrorMessage(w, http.StatusBadGateway, "token exchange failed")
//
// Request parsing:
//
//	var req sso.LoginRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	providerID, ok := httputil.ParsePathStringOrError(w, r, "provider")
//
// Middleware:
//
//	router.Use(
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
