package wavespeed

import (
	"fmt"
	"time"
)

// AuthError indicates the service rejected the configured API key, either as
// an HTTP 401 or as an envelope code 401 inside a 200 response.
type AuthError struct{}

func (e *AuthError) Error() string {
	return "Unauthorized: Invalid API key"
}

// RequestError is a non-success HTTP status returned by the service. Message
// holds the parsed error text from the response body when one was present.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("Error: %s", e.Message)
	}
	return fmt.Sprintf("Error: %d", e.Status)
}

// APIError is an application-level failure reported through the response
// envelope of an otherwise successful HTTP call.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Unknown error"
	}
	return fmt.Sprintf("API Error: %s", msg)
}

// ValidationError reports a request field that is missing or violates its
// declared constraints. It is returned before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// SubmissionError indicates the service accepted a submission call but the
// response carried no task ID.
type SubmissionError struct{}

func (e *SubmissionError) Error() string {
	return "No request ID in response"
}

// InvalidTaskIDError is returned when a status or wait call is given an empty
// task ID.
type InvalidTaskIDError struct{}

func (e *InvalidTaskIDError) Error() string {
	return "No valid task ID provided"
}

// TaskFailedError carries the failure reason reported by the service for a
// task that reached the failed state.
type TaskFailedError struct {
	TaskID string
	Reason string
}

func (e *TaskFailedError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "Task failed"
	}
	return fmt.Sprintf("Task failed: %s", reason)
}

// TaskTimeoutError is returned when the local wait budget is exhausted before
// the task reaches a terminal state. The task may still complete remotely.
type TaskTimeoutError struct {
	TaskID  string
	Timeout time.Duration
}

func (e *TaskTimeoutError) Error() string {
	return "Task timed out"
}

// UploadError indicates a media upload that did not yield a hosted download
// URL, either because the call failed or because the response had no URL.
type UploadError struct {
	Status int
}

func (e *UploadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("Upload failed: %d", e.Status)
	}
	return "No download URL in response"
}
