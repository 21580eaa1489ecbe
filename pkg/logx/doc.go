// Package logx is alfredo's logging layer on top of zerolog.
//
// Components hold a Logger value and derive children with With. The
// Service behind it owns the sinks (console, JSON file, log chat) and can
// swap them at runtime when the logging section of the config changes.
package logx
