// Package httputil provides shared HTTP response/request helpers for handlers.
//
// Handlers use these instead of raw http.ResponseWriter calls so every
// endpoint emits the same JSON envelope and content type.
package httputil
