// Package logx configures ghnotifyd's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional journald sink (priority-mapped, structured fields as journal vars)
package logx
