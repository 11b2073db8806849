// Package server runs the local HTTP listener that completes the OAuth authorization code flow.
//
// # Router Infrastructure
//
// [BasicRouter] implements [Router] on [http.ServeMux]. Each route is bound to one method and
// other methods get 405. [Middleware] registered with [BasicRouter.Use] wraps every handler
// registered afterwards, first added outermost.
//
// Handlers that own their routes implement [Handler] and are registered with [BasicRouter.Handler].
//
// # Callback
//
// [CallbackHandler] serves GET /callback. It reads the authorization code, hands it to a
// [CodeHandler] in a goroutine, and answers 200 "success!" whatever the outcome. Provider
// error redirects are logged and answered the same way.
//
// # Request Logging
//
// [RequestLogger] assigns a uuid to every request, echoes it in X-Request-ID, and makes a
// request-scoped logger available through [LoggerFrom].
//
// # Listener
//
// [Listener.Start] binds the address and serves in the background, reporting failures on a
// channel. It shuts down when its context is cancelled or [Listener.Shutdown] is called.
package server
