// Package middleware provides the HTTP middleware wrapped around the
// security gate: request ids, panic recovery, access logging and request
// body limits.
//
//	handler := middleware.RequestID()(
//	    middleware.Recovery(logger)(
//	        middleware.Logging(logger)(gate.Handler(proxy)),
//	    ),
//	)
package middleware
