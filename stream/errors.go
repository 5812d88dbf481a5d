package stream

import "errors"

var (
	ErrUnexpectedCheckpoint = errors.New("stream: checkpoint item seen outside CK status")
	ErrVersionRegressed     = errors.New("stream: chk_info.version decreased")
	ErrNotSourceTask        = errors.New("stream: Submit item delivered to a non-Source task")
	ErrVersionNotMonotonic  = errors.New("stream: submit version did not strictly increase")
	ErrUnknownQueueItem     = errors.New("stream: unknown queue item kind")
	ErrNoSiblingTask        = errors.New("stream: fill-history task has no linked sibling")
	ErrSiblingNotHalted     = errors.New("stream: sibling task did not reach Halt before transfer")
)
