// Package services provides the service registry for signald.
//
// The daemon builds every pipeline component once and hands them to the
// HTTP layer through a Registry. Use NewRegistry with Options, then the
// accessor methods to reach individual services.
package services
