// Package history keeps an audit trail of cover decisions in SQLite.
//
// Every time an engine settles on a new reason or target, the snapshot is
// written to the cover_decisions table. The API serves the trail per cover,
// newest first.
//
//	Engine ──Publish──▶ Broadcaster ──▶ Recorder.Observe ──queue──▶ SQLiteRepository
//	                                                                   ▲
//	                                      GET /covers/{cover}/history ─┘
package history
