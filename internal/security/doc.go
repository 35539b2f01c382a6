// Package security gates inbound HTTP requests.
//
// A Middleware runs three ordered phases and stops at the first failure:
//
//  1. request validation (client IP and hostname allowlists)
//  2. authentication of an API key, when RequireAuth is set
//  3. authorization against AllowedScopes, when the key was authenticated
//
// An optional RateLimiter runs between authentication and authorization.
// Every rejection is an *Error whose Kind fixes the HTTP status:
// 401 authentication, 403 authorization, 404 validation, 429 rate limit.
// With SilentFail every rejection becomes a plain 404 "Not found".
//
// Errors that are not *Error, such as credential store outages, are not
// turned into security responses; Handler passes them to its ErrorHandler.
//
//	mw, err := security.NewMiddleware(validator, manager, cfg,
//	    security.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	http.Handle("/mcp", mw.Handler(next))
package security
