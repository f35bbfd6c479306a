package enum

// ForeignIDType classifies the external system a keyed user's foreign id belongs to.
//
//go:generate go tool enumer -type=ForeignIDType -trimprefix=ForeignIDType
type ForeignIDType int

const (
	// ForeignIDTypeUnset marks a keyed user without a known external system.
	ForeignIDTypeUnset ForeignIDType = iota
	// ForeignIDTypeExternal is the classifier assigned to every imported keyed user.
	ForeignIDTypeExternal
)
