/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both inside the server
and on the wire, where they travel in HTTP JSON responses and WebSocket error events.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Server, Channel and Message Errors
const (
	// ErrServerNotFound indicates that the referenced server does not exist.
	ErrServerNotFound = 2101

	// ErrChannelNotFound indicates that the referenced channel does not exist or belongs to another server.
	ErrChannelNotFound = 2102

	// ErrChannelTypeInvalid indicates that an unknown channel type was supplied or the channel has the wrong type for the action.
	ErrChannelTypeInvalid = 2103

	// ErrVoiceChannelFull indicates that the voice channel has reached its user limit.
	ErrVoiceChannelFull = 2104

	// ErrMessageEmpty indicates that a message without text was submitted.
	ErrMessageEmpty = 2201

	// ErrMessageContentTooLong indicates that the user's message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2202

	// ErrSlowModeActive indicates that the channel cooldown for this user has not elapsed yet.
	ErrSlowModeActive = 2203

	// ErrInviteInvalid indicates that the invite code does not exist.
	ErrInviteInvalid = 2301

	// ErrInviteExhausted indicates that the invite has reached its maximum number of uses.
	ErrInviteExhausted = 2302

	// ErrAlreadyMember indicates that the user already belongs to the server.
	ErrAlreadyMember = 2303

	// ErrFileTypeNotAllowed indicates that the uploaded file type is not accepted.
	ErrFileTypeNotAllowed = 2401

	// ErrFileTooLarge indicates that the uploaded file exceeds the size limit.
	ErrFileTooLarge = 2402
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrPowChallengeRequired indicates the client must complete a Proof-of-Work challenge first.
	ErrPowChallengeRequired = 3001

	// ErrPowChallengeInvalid indicates that the PoW proof provided by the client is invalid or incorrect.
	ErrPowChallengeInvalid = 3002

	// ErrAlreadyLoggedIn indicates that an authenticated caller attempted to register or log in again.
	ErrAlreadyLoggedIn = 3005

	// ErrInvalidUsername indicates that the username does not satisfy the format rules.
	ErrInvalidUsername = 3006

	// ErrInvalidPassword indicates that the password does not satisfy the length rules.
	ErrInvalidPassword = 3007

	// ErrUserAlreadyExists indicates that the username is taken.
	ErrUserAlreadyExists = 3008

	// ErrInvalidCredentials indicates a failed login.
	ErrInvalidCredentials = 3009

	// ErrUserNotFound indicates that the account does not exist.
	ErrUserNotFound = 3010

	// ErrUnauthorized indicates that the request requires an authenticated identity.
	ErrUnauthorized = 3011

	// ErrPermissionDenied indicates that the action requires server owner or admin rights.
	ErrPermissionDenied = 3012

	// ErrNotIdentified indicates that the socket has not completed join-server yet.
	ErrNotIdentified = 3013

	// ErrOwnerOnly indicates that the action is reserved for the server owner.
	ErrOwnerOnly = 3014
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStoreFailed indicates that the persistence layer rejected or failed an operation.
	ErrStoreFailed = 5001

	// ErrFileStorageFailed indicates that object storage could not serve the request.
	ErrFileStorageFailed = 5002

	// ErrFeatureDisabled indicates that the feature is not configured on this deployment.
	ErrFeatureDisabled = 5003
)
