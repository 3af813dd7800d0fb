// Package registry keeps the StatusStore in step with the configured MCP
// servers: seed definitions from config.yaml plus one YAML file per server
// in the servers/ directory, watched with fsnotify.
package registry
