// Package api defines the wire types of the MLflow tracking protocol as used
// by mlbridge.
//
// This package provides the data types shared by the tracking client, the
// store backends, and the test server: experiments, runs, metrics, params,
// tags, registered models, request/response envelopes, error types, and ID
// generation. All types produce JSON compatible with the MLflow REST API 2.0
// wire format (snake_case field names), so any standard tracking server can
// be used unchanged.
//
// Core types:
//   - [Experiment]: Named container of runs with a lifecycle stage
//   - [Run]: One tracked execution, split into [RunInfo] and [RunData]
//   - [Metric], [Param], [RunTag]: The three kinds of logged run data
//   - [RegisteredModel], [ModelVersion]: Model registry entities
//   - [TrackingError]: Structured error with an MLflow error code
//
// The package performs no I/O.
package api
