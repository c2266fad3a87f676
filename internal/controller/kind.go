package controller

// Kind identifies one of the fixed host signal kinds a controller can handle.
type Kind int

const (
	// Update fires once per rendered frame on the client, once per
	// heartbeat on the server.
	Update Kind = iota
	InputBegan
	InputEnded
	ActorJoined
	ActorLeaving
	// CharacterAdded and CharacterRemoving fire for the local character and
	// are only valid in a client execution context.
	CharacterAdded
	CharacterRemoving
)

// Kinds lists every signal kind in connection order.
var Kinds = []Kind{
	Update,
	InputBegan,
	InputEnded,
	ActorJoined,
	ActorLeaving,
	CharacterAdded,
	CharacterRemoving,
}

// fieldNames maps each kind to the key controllers use in their signals table.
var fieldNames = map[Kind]string{
	Update:            "update",
	InputBegan:        "inputBegan",
	InputEnded:        "inputEnded",
	ActorJoined:       "actorJoined",
	ActorLeaving:      "actorLeaving",
	CharacterAdded:    "characterAdded",
	CharacterRemoving: "characterRemoving",
}

var kindsByField = func() map[string]Kind {
	m := make(map[string]Kind, len(fieldNames))
	for k, name := range fieldNames {
		m[name] = k
	}
	return m
}()

// String returns the kind's signals-table key.
func (k Kind) String() string {
	if name, ok := fieldNames[k]; ok {
		return name
	}
	return "unknown"
}

// ClientOnly reports whether the kind is only valid in a client context.
func (k Kind) ClientOnly() bool {
	return k == CharacterAdded || k == CharacterRemoving
}

// KindFromField maps a signals-table key back to its kind.
func KindFromField(name string) (Kind, bool) {
	k, ok := kindsByField[name]
	return k, ok
}
