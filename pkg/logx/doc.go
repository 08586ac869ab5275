// Package logx configures signalbot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - console output readable (short timestamp + short caller)
//   - file output JSON-structured
//   - an optional chat sink that forwards warnings to the admin log chat
package logx
