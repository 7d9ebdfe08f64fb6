/*
Package log provides Burrow's zerolog-based structured logging.

Init configures the global logger once from the CLI (level, console or
JSON output); components take child loggers via WithComponent and tag
node- or app-scoped entries with WithNode and WithApp.
*/
package log
