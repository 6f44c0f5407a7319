// Package tracking defines the backend contract of mlbridge and the pieces
// shared by every backend: the Store interface, sentinel errors, the run
// search filter grammar, the REST client for remote tracking servers, and
// the Session that manages experiment setup and the active-run stack.
//
// Backends (memory, filestore, postgres) implement Store and register an
// opener for their URI scheme, following the database/sql driver convention.
// Open dispatches a tracking URI to the matching backend; http and https
// URIs are served by the REST client in this package.
package tracking
