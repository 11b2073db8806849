// Package models defines the data carried between the nowplaying components.
//
// The package contains two categories of types:
//
// 1. Persisted state
//   - [Credential] : the Spotify OAuth2 token record, stored as one JSON document
//   - [Play] : one row of play history
//
// 2. Transient values, rebuilt on every poll
//   - [PlaybackState] : what Spotify reports as currently playing
//   - [PresenceUpdate] : the Slack status derived from a [PlaybackState]
package models
