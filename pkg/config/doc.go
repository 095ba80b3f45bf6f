// Package config provides environment-driven configuration for pva
// clients and servers.
//
// Configuration follows the usual EPICS-style precedence: explicit
// values win over environment variables, which win over defaults.
//
// Recognized environment variables:
//
//	PVA_ADDR_LIST        space-separated list of "host[:port]" endpoints
//	PVA_SERVER_PORT      TCP port for servers (default 5075)
//	PVA_REQUEST_TIMEOUT  client operation timeout, Go duration syntax
//	PVA_NAME_SERVER      single "host:port" endpoint, prepended to the
//	                     address list
//
// Command-line tools may additionally load a YAML file via LoadClientFile
// or LoadServerFile; file values are applied before environment values.
package config
