// Package repositories implements persistence for nowplaying.
//
// Key Implementations:
//   - [FileStore] : the Spotify credential as one JSON file (default)
//   - [KeyringStore] : the same JSON document in the OS keyring
//   - [HistoryRepository] : SQLite play history
//
// Both credential stores satisfy [CredentialStore] and are the only writers of the credential;
// other components read snapshots through them.
package repositories
