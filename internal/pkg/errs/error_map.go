/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses, WebSocket error events and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Server, Channel and Message Errors
	ErrServerNotFound:        {Code: ErrServerNotFound, Message: "Server not found.", Status: http.StatusNotFound},
	ErrChannelNotFound:       {Code: ErrChannelNotFound, Message: "Channel not found.", Status: http.StatusNotFound},
	ErrChannelTypeInvalid:    {Code: ErrChannelTypeInvalid, Message: "Invalid channel type."},
	ErrVoiceChannelFull:      {Code: ErrVoiceChannelFull, Message: "Voice channel is full."},
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Message: "Message cannot be empty."},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long."},
	ErrSlowModeActive:        {Code: ErrSlowModeActive, Message: "Slow mode active. Please wait %d seconds before sending another message."},
	ErrInviteInvalid:         {Code: ErrInviteInvalid, Message: "Invalid invite code.", Status: http.StatusNotFound},
	ErrInviteExhausted:       {Code: ErrInviteExhausted, Message: "Invite has expired."},
	ErrAlreadyMember:         {Code: ErrAlreadyMember, Message: "Already in server."},
	ErrFileTypeNotAllowed:    {Code: ErrFileTypeNotAllowed, Message: "This file type is not supported."},
	ErrFileTooLarge:          {Code: ErrFileTooLarge, Message: "File is too large."},

	// 3xxx: User, Session, and Security Errors
	ErrPowChallengeRequired: {Code: ErrPowChallengeRequired, Message: "Verification required. Please try again."},
	ErrPowChallengeInvalid:  {Code: ErrPowChallengeInvalid, Message: "Verification failed. Please try again."},
	ErrAlreadyLoggedIn:      {Code: ErrAlreadyLoggedIn, Message: "You are already signed in."},
	ErrInvalidUsername:      {Code: ErrInvalidUsername, Message: "Invalid username."},
	ErrInvalidPassword:      {Code: ErrInvalidPassword, Message: "Invalid password."},
	ErrUserAlreadyExists:    {Code: ErrUserAlreadyExists, Message: "Username is already taken."},
	ErrInvalidCredentials:   {Code: ErrInvalidCredentials, Message: "Incorrect username or password."},
	ErrUserNotFound:         {Code: ErrUserNotFound, Message: "Account not found."},
	ErrUnauthorized:         {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrPermissionDenied:     {Code: ErrPermissionDenied, Message: "Only server owners and admins can do that.", Status: http.StatusForbidden},
	ErrNotIdentified:        {Code: ErrNotIdentified, Message: "Join a server first."},
	ErrOwnerOnly:            {Code: ErrOwnerOnly, Message: "Only the server owner can manage admins.", Status: http.StatusForbidden},

	// 5xxx: Internal System Errors
	ErrUnknown:           {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrStoreFailed:       {Code: ErrStoreFailed, Message: "Could not save your change. Please try again.", Status: http.StatusInternalServerError},
	ErrFileStorageFailed: {Code: ErrFileStorageFailed, Message: "File upload failed. Please try again."},
	ErrFeatureDisabled:   {Code: ErrFeatureDisabled, Message: "This feature is not available.", Status: http.StatusNotImplemented},
}
