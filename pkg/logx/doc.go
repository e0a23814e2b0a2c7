// Package logx is a small structured-logging façade over zerolog.
//
// The rest of the codebase depends on a stable, minimal API (Logger plus
// Field helpers) while sink wiring (console, file, rate-limited admin mail
// alerts) stays swappable at runtime through Service.Apply.
package logx
