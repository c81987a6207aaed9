// Package api is the HTTP client for the route, report and route-init
// endpoints.
//
// Every endpoint answers JSON. The server reports some failures with status
// 200 and an "error" field, so a non-empty error field is treated the same as
// a 4xx/5xx status and wrapped in ErrServer. Transport errors are returned
// unwrapped by ErrServer so callers can tell "server said no" from "could not
// reach the server".
//
// Endpoint paths are joined onto the base URL. A path configured as an
// absolute URL is used verbatim, which allows each endpoint to be hosted
// separately.
package api
