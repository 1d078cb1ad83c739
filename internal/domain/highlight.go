package domain

// Class is the highlight class of the first word of an input buffer.
type Class int

const (
	ClassNone Class = iota
	ClassBroadcast
	ClassBuiltin
	ClassKnown
	ClassUnknown
)
