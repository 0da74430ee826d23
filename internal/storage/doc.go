// Package storage provides read access to the shop's order history.
//
// Drivers:
//   - "sqlite":   local SQLite database (modernc.org/sqlite, pure Go)
//   - "supabase": hosted Postgres through the Supabase REST API
//   - "file":     JSON array of orders on disk (handy for local runs)
//
// The bot never writes orders; the shop front-end does.
package storage
