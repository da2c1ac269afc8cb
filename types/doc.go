// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types holds the structured error shared by the bus, the
coordinator and the HTTP handlers.

  - Error / ErrorCode: code, message, HTTP status, Retryable flag and cause
  - AsError / IsErrorCode / IsRetryable / GetErrorCode: lookup through wrapped chains
  - NewInvalidRequestError / NewTimeoutError / NewInternalError: common constructors
*/
package types
