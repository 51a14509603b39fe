package errors

// Error codes for the wordfreq contracts. Keep stable; used across adapters, requester and responder.
const (
	ErrCodeHandlerExists       = "wordfreq.handler_exists"
	ErrCodeHandlerNotFound     = "wordfreq.handler_not_found"
	ErrCodeHandlerTypeMismatch = "wordfreq.handler_type_mismatch"
	ErrCodeHandlerPanic        = "wordfreq.handler_panic"
	ErrCodeNoReply             = "wordfreq.no_reply"
	ErrCodeRequestFailed       = "wordfreq.request_failed"
	ErrCodeSubscribeFailed     = "wordfreq.subscribe_failed"
	ErrCodeReplyFailed         = "wordfreq.reply_failed"
	ErrCodeAlreadyReplied      = "wordfreq.already_replied"
	ErrCodeNoReplySubject      = "wordfreq.no_reply_subject"
	ErrCodeSourceClosed        = "wordfreq.source_closed"
	ErrCodeMalformedPayload    = "wordfreq.malformed_payload"
	ErrCodeSerializationFailed = "wordfreq.serialization_failed"
	ErrCodeConnectFailed       = "wordfreq.connect_failed"
	ErrCodeInvalidConfig       = "wordfreq.invalid_config"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrHandlerExists       = Code(ErrCodeHandlerExists)
	ErrHandlerNotFound     = Code(ErrCodeHandlerNotFound)
	ErrHandlerTypeMismatch = Code(ErrCodeHandlerTypeMismatch)
	ErrHandlerPanic        = Code(ErrCodeHandlerPanic)

	// ErrNoReply means no correlated reply arrived in time, or nobody is subscribed to the subject.
	ErrNoReply             = Code(ErrCodeNoReply)
	ErrRequestFailed       = Code(ErrCodeRequestFailed)
	ErrSubscribeFailed     = Code(ErrCodeSubscribeFailed)
	ErrReplyFailed         = Code(ErrCodeReplyFailed)
	ErrAlreadyReplied      = Code(ErrCodeAlreadyReplied)
	ErrNoReplySubject      = Code(ErrCodeNoReplySubject)
	ErrSourceClosed        = Code(ErrCodeSourceClosed)
	ErrMalformedPayload    = Code(ErrCodeMalformedPayload)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
	ErrConnectFailed       = Code(ErrCodeConnectFailed)
	ErrInvalidConfig       = Code(ErrCodeInvalidConfig)
)
