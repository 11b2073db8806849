// Package tasks runs the long-lived parts of nowplaying: the authorization session and the playback monitor.
//
// # Session
//
// [Session] is a small state machine over the stored credential:
//
//	NoCredential -> AwaitingCode -> HasCredential (-> HasCredential on refresh)
//
// [Session.Start] loads the store. Without a credential it opens the provider's consent page
// and waits for [Session.HandleCode], which the callback listener calls with the code it receives.
// With a credential it refreshes once and becomes ready. [Session.Ready] closes the first time a
// credential is held, and the daemon only starts polling after that.
//
// Exchange, refresh and save run under one mutex so a callback cannot interleave with a refresh.
//
// # Monitor
//
// [Monitor] polls the currently-playing endpoint and mirrors it into presence:
//   - nothing playing: clear presence, poll again after the idle delay
//   - playing: publish "{artist} - {track}", poll again when the track should end plus a buffer
//   - expired token: refresh once, poll again immediately
//   - anything else: log the provider detail and stop
//
// Polls pass through a rate limiter so zero or negative delays cannot spin.
// [Monitor.Pause] and [Monitor.Resume] back the SIGTSTP and SIGCONT handlers.
//
// [Monitor.Notify] reports every finished cycle on a non-blocking channel.
package tasks
