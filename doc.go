/*
Package databind maps between token streams and typed Go values, in both
directions.

A Mapper is built once from a Builder and shared by every operation. It
decodes the tokens read from a cursor into Go values, and encodes Go values
into an emitter. JSON cursors and emitters are provided by the jsontoken
package; ReadValue and WriteValue use them directly.

# Types, converters and identity

Structs are described by their bind tags:

	type Node struct {
		_        struct{} `bind:"identity=intseq"`
		Name     string   `bind:"name"`
		Parent   *Node    `bind:",backref"`
		Children []*Node  `bind:"children,omitempty"`
	}

Values of interface types are written with a type id, the name the concrete
type was registered with:

	m, err := databind.NewBuilder().
		RegisterType("circle", reflect.TypeOf(Circle{})).
		Build()

Structs with an identity are written in full the first time they are met,
then as their id. While decoding, ids referring to objects not read yet are
resolved once the object is read, and every id left unresolved is reported
in a single error at the end of the operation.

# Per operation settings

WithView and WithAttribute return mappers sharing the converters of their
parent with different per operation settings. Everything else is fixed
when the Mapper is built.
*/
package databind
