// Package tgui provides small Telegram UI helpers:
//   - HTML escaping and inline formatting (safe for ParseMode="HTML")
//   - A message builder (title, sections, key/value rows, reply keyboard)
//   - Rune-safe truncation and splitting under Telegram's message limit
package tgui
