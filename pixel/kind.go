package pixel

// Kind is the shape of a texture.
type Kind int

// Texture kinds.
const (
	Plain Kind = iota
	Cube
	Volume
)

// CubeFaces is the number of faces of a cube texture.
const CubeFaces = 6

func (k Kind) String() string {
	switch k {
	case Cube:
		return "cube"
	case Volume:
		return "volume"
	}
	return "plain"
}

// Faces is how many independent mip chains a texture of kind k has.
func (k Kind) Faces() int {
	if k == Cube {
		return CubeFaces
	}
	return 1
}
