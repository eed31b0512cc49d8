package service

import "errors"

var (
	// ErrConversationNotFound indicates an unknown conversation id.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrNotParticipant indicates the caller does not belong to the conversation.
	ErrNotParticipant = errors.New("requester is not a conversation participant")
	// ErrEmptyContent indicates the message body was empty after sanitization.
	ErrEmptyContent = errors.New("message content empty after sanitization")
	// ErrSelfConversation indicates an attempt to open a thread with oneself.
	ErrSelfConversation = errors.New("conversation requires two distinct participants")
	// ErrNotificationNotFound indicates an unknown notification id for the caller.
	ErrNotificationNotFound = errors.New("notification not found")
)
