package apperr

import "errors"

// Sentinel errors returned across the engine boundary. Handlers map these to
// HTTP statuses; callers match with errors.Is.
var (
	ErrEmptyMessage     = errors.New("message has no content and no attachments")
	ErrMessageTooLarge  = errors.New("message content too large")
	ErrAttachmentLimit  = errors.New("too many attachments")
	ErrUpload           = errors.New("upload failed")
	ErrUploadTimeout    = errors.New("upload timed out")
	ErrNotFound         = errors.New("not found")
	ErrPermission       = errors.New("permission denied")
	ErrVoiceNotEditable = errors.New("voice messages cannot be edited")
	ErrInvalidVoice     = errors.New("a voice message carries exactly one voice attachment")
)
