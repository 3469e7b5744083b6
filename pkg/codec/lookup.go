package codec

// Protocol aliases shared by every component catalog.
var (
	ComponentType  = Alias("COMPONENT_TYPE", Int32)
	ComponentID    = Alias("COMPONENT_ID", Uint64)
	ComponentState = Alias("COMPONENT_STATE", Int8)
	EntityID       = Alias("ENTITY_ID", Int32)
)

var builtins = map[string]Codec{}

func init() {
	for _, c := range []Codec{
		Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64, Uint64,
		Float, Double, Bool, String, Unicode, Blob, Raw,
		ComponentType, ComponentID, ComponentState, EntityID,
	} {
		builtins[c.Name()] = c
	}
}

// Lookup returns the primitive or built-in alias declared under name.
func Lookup(name string) (Codec, bool) {
	c, ok := builtins[name]
	return c, ok
}

// Base strips any alias and returns the underlying codec.
func Base(c Codec) Codec {
	if a, ok := c.(aliasCodec); ok {
		return a.base
	}
	return c
}
